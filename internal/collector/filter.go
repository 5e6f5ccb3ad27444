package collector

import (
	"path"
	"slices"
	"strings"

	"github.com/google/go-github/v81/github"

	"licensemedic/internal/config"
)

// repoPredicate reports whether a repository stays in the selection.
type repoPredicate func(*github.Repository) bool

// FilterRepos keeps the repositories accepted by every targeting filter, in
// input order, then truncates to MaxRepos.
func FilterRepos(repos []*github.Repository, targeting config.Targeting) []*github.Repository {
	preds := repoPredicates(targeting)

	var out []*github.Repository
	for _, r := range repos {
		if r == nil {
			continue
		}
		if !slices.ContainsFunc(preds, func(p repoPredicate) bool { return !p(r) }) {
			out = append(out, r)
		}
	}
	if targeting.MaxRepos > 0 && len(out) > targeting.MaxRepos {
		out = out[:targeting.MaxRepos]
	}
	return out
}

func repoPredicates(t config.Targeting) []repoPredicate {
	preds := []repoPredicate{
		policyPredicate(t.Archived, (*github.Repository).GetArchived),
		policyPredicate(t.Forks, (*github.Repository).GetFork),
	}
	if v := strings.TrimSpace(t.Visibility); v != "" && v != "all" {
		preds = append(preds, func(r *github.Repository) bool { return repoVisibility(r) == v })
	}
	if topics := trimmed(t.Topic); len(topics) > 0 {
		preds = append(preds, func(r *github.Repository) bool {
			return slices.ContainsFunc(r.Topics, func(rt string) bool { return slices.Contains(topics, rt) })
		})
	}
	if len(t.Include) > 0 {
		preds = append(preds, func(r *github.Repository) bool {
			return matchesAnyPattern(t.Include, r.GetFullName(), r.GetName())
		})
	}
	if len(t.Exclude) > 0 {
		preds = append(preds, func(r *github.Repository) bool {
			return !matchesAnyPattern(t.Exclude, r.GetFullName(), r.GetName())
		})
	}
	return preds
}

// policyPredicate applies an include|exclude|only policy to a repository
// flag. An empty policy means exclude.
func policyPredicate(policy string, flag func(*github.Repository) bool) repoPredicate {
	switch strings.TrimSpace(policy) {
	case "include":
		return func(*github.Repository) bool { return true }
	case "only":
		return flag
	default:
		return func(r *github.Repository) bool { return !flag(r) }
	}
}

func repoVisibility(r *github.Repository) string {
	if v := strings.TrimSpace(r.GetVisibility()); v != "" {
		return v
	}
	if r.GetPrivate() {
		return "private"
	}
	return "public"
}

func trimmed(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func matchesAnyPattern(patterns []string, fullName, repoName string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool { return matchPattern(p, fullName, repoName) })
}

// matchPattern matches owner-qualified patterns ("acme/*") against the full
// name and bare patterns ("*-service") against the repository name. Malformed
// patterns match nothing.
func matchPattern(pattern, fullName, repoName string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	subject := repoName
	if strings.Contains(pattern, "/") {
		subject = fullName
	}
	matched, _ := path.Match(pattern, subject)
	return matched
}
