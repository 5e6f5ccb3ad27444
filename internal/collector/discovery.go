package collector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v81/github"

	"licensemedic/internal/config"
	gh "licensemedic/internal/github"
)

const defaultRepoDiscoveryLimit = 1000

// ResolveRepos enumerates the repositories selected by targeting. Account
// selectors are expected to be normalized already (see config.ValidateTargeting).
func ResolveRepos(ctx context.Context, client *gh.Client, targeting config.Targeting) ([]*github.Repository, error) {
	limit := computeRepoLimit(targeting)

	// Organization scope (optionally filtered by --repos selectors)
	if targeting.Org != "" {
		repos, err := listOrgRepos(ctx, client, targeting.Org, limit)
		if err != nil {
			return nil, err
		}
		// With an account scope, --repos acts as an include-filter.
		repos, err = filterByRepoSelectors(repos, targeting.Repos)
		if err != nil {
			return nil, err
		}
		return dedupeRepos(repos), nil
	}

	// User scope (same --repos semantics as org scope)
	if targeting.User != "" {
		repos, err := listUserRepos(ctx, client, targeting.User, limit)
		if err != nil {
			return nil, err
		}
		repos, err = filterByRepoSelectors(repos, targeting.Repos)
		if err != nil {
			return nil, err
		}
		return dedupeRepos(repos), nil
	}

	if len(targeting.Repos) > 0 {
		repos, err := resolveExplicitRepos(ctx, client, targeting.Repos)
		if err != nil {
			return nil, err
		}
		return dedupeRepos(repos), nil
	}

	return nil, nil
}

func computeRepoLimit(targeting config.Targeting) int {
	limit := defaultRepoDiscoveryLimit
	if targeting.MaxRepos > 0 {
		limit = targeting.MaxRepos
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// paginate drains a list endpoint until it runs out of pages or limit
// repositories have been seen.
func paginate(limit int, list func(page int) ([]*github.Repository, *github.Response, error)) ([]*github.Repository, error) {
	out := make([]*github.Repository, 0, min(limit, 100))
	page := 0
	for {
		repos, resp, err := list(page)
		if err != nil {
			return nil, err
		}
		for _, repo := range repos {
			if len(out) >= limit {
				return out, nil
			}
			out = append(out, repo)
		}
		if len(out) >= limit || resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		page = resp.NextPage
	}
}

func listOrgRepos(ctx context.Context, client *gh.Client, org string, limit int) ([]*github.Repository, error) {
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	repos, err := paginate(limit, func(page int) ([]*github.Repository, *github.Response, error) {
		opts.Page = page
		return client.Client.Repositories.ListByOrg(ctx, org, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list org repos: %w", err)
	}
	return repos, nil
}

func listUserRepos(ctx context.Context, client *gh.Client, user string, limit int) ([]*github.Repository, error) {
	// If the requested user owns the token, use the authenticated endpoint so
	// private repos are included.
	if me, _, err := client.Client.Users.Get(ctx, ""); err == nil && strings.EqualFold(me.GetLogin(), user) {
		return listAuthenticatedUserRepos(ctx, client, limit)
	}
	return listPublicUserRepos(ctx, client, user, limit)
}

func listAuthenticatedUserRepos(ctx context.Context, client *gh.Client, limit int) ([]*github.Repository, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
		Visibility:  "all",
		Affiliation: "owner",
	}
	repos, err := paginate(limit, func(page int) ([]*github.Repository, *github.Response, error) {
		opts.Page = page
		return client.Client.Repositories.ListByAuthenticatedUser(ctx, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list authenticated user repos: %w", err)
	}
	return repos, nil
}

func listPublicUserRepos(ctx context.Context, client *gh.Client, user string, limit int) ([]*github.Repository, error) {
	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
		Type:        "all",
	}
	repos, err := paginate(limit, func(page int) ([]*github.Repository, *github.Response, error) {
		opts.Page = page
		return client.Client.Repositories.ListByUser(ctx, user, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list user repos: %w", err)
	}
	return repos, nil
}

func filterByRepoSelectors(repos []*github.Repository, selectors []string) ([]*github.Repository, error) {
	if len(selectors) == 0 {
		return repos, nil
	}

	patterns := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if !hasGlobChars(sel) {
			norm, err := normalizeRepoSelector(sel)
			if err != nil {
				return nil, err
			}
			sel = norm
		}
		patterns = append(patterns, sel)
	}
	if len(patterns) == 0 {
		return repos, nil
	}

	filtered := make([]*github.Repository, 0, len(repos))
	for _, r := range repos {
		if matchesAnyPattern(patterns, r.GetFullName(), r.GetName()) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func resolveExplicitRepos(ctx context.Context, client *gh.Client, selectors []string) ([]*github.Repository, error) {
	out := make([]*github.Repository, 0, len(selectors))
	for _, raw := range selectors {
		sel := strings.TrimSpace(raw)
		if sel == "" {
			continue
		}
		norm, err := normalizeRepoSelector(sel)
		if err != nil {
			return nil, err
		}
		if hasGlobChars(norm) {
			return nil, fmt.Errorf("repo selector %q contains glob characters; use --org or --user to enumerate candidates", norm)
		}
		owner, name, err := splitOwnerRepo(norm)
		if err != nil {
			return nil, err
		}
		repo, _, err := client.Client.Repositories.Get(ctx, owner, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve repo %s: %w", norm, err)
		}
		out = append(out, repo)
	}
	return out, nil
}

func splitOwnerRepo(sel string) (owner string, name string, err error) {
	owner, name, ok := strings.Cut(sel, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repo selector %q; expected owner/name", sel)
	}
	return owner, name, nil
}

func hasGlobChars(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// normalizeRepoSelector accepts owner/name as well as the common GitHub URL
// forms (https, github.com/..., git@github.com:...) and returns owner/name.
func normalizeRepoSelector(sel string) (string, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return sel, nil
	}
	invalid := fmt.Errorf("invalid repo selector %q; expected owner/name", sel)

	if strings.HasPrefix(sel, "github.com/") || strings.HasPrefix(sel, "www.github.com/") {
		sel = "https://" + sel
	}

	var repoPath string
	switch {
	case strings.HasPrefix(sel, "git@github.com:"):
		repoPath = strings.TrimPrefix(sel, "git@github.com:")
	case strings.HasPrefix(sel, "http://"), strings.HasPrefix(sel, "https://"), strings.HasPrefix(sel, "git://"):
		u, err := url.Parse(sel)
		if err != nil {
			return "", invalid
		}
		host := strings.ToLower(u.Hostname())
		if host != "github.com" && host != "www.github.com" {
			return "", invalid
		}
		repoPath = u.Path
	default:
		return sel, nil
	}

	// Extra path segments (tree/main, pulls, ...) are ignored.
	parts := strings.Split(strings.Trim(repoPath, "/"), "/")
	if len(parts) < 2 {
		return "", invalid
	}
	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")
	if owner == "" || repo == "" {
		return "", invalid
	}
	return owner + "/" + repo, nil
}

func dedupeRepos(in []*github.Repository) []*github.Repository {
	if len(in) <= 1 {
		return in
	}

	seen := make(map[string]struct{}, len(in))
	out := make([]*github.Repository, 0, len(in))
	for _, r := range in {
		key := ""
		if r.GetID() != 0 {
			key = "id:" + strconv.FormatInt(r.GetID(), 10)
		} else if r.GetFullName() != "" {
			key = "full:" + r.GetFullName()
		}
		if key == "" {
			// No stable key; keep the entry.
			out = append(out, r)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
