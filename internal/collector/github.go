package collector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-github/v81/github"
	"golang.org/x/sync/errgroup"

	"licensemedic/internal/artifact"
	"licensemedic/internal/config"
	gh "licensemedic/internal/github"
	"licensemedic/internal/rules"
)

// SourceGitHub is the coordinate source of repository artifacts.
const SourceGitHub = "github"

// Metadata keys set on repository artifacts.
const (
	MetadataArchived   = "archived"
	MetadataFork       = "fork"
	MetadataVisibility = "visibility"
	MetadataURL        = "url"
)

// noAssertion is what GitHub reports for a license file it could not classify.
const noAssertion = "NOASSERTION"

// GitHubCollector turns GitHub repositories into artifacts: the repository's
// detected license becomes the artifact license, and its settings become
// metadata.
type GitHubCollector struct {
	client      *gh.Client
	targeting   config.Targeting
	concurrency int
	logger      *slog.Logger
}

func NewGitHub(client *gh.Client, targeting config.Targeting, concurrency int, logger *slog.Logger) *GitHubCollector {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GitHubCollector{
		client:      client,
		targeting:   targeting,
		concurrency: concurrency,
		logger:      logger.With("component", "collector", "source", SourceGitHub),
	}
}

func (c *GitHubCollector) Collect(ctx context.Context) (Collection, error) {
	repos, err := ResolveRepos(ctx, c.client, c.targeting)
	if err != nil {
		return Collection{}, err
	}
	discovered := len(repos)
	repos = FilterRepos(repos, c.targeting)
	c.logger.Debug("repositories resolved", "discovered", discovered, "selected", len(repos))

	arts := make([]artifact.Artifact, len(repos))
	if !c.targeting.Copyrights {
		for i, r := range repos {
			arts[i] = RepositoryArtifact(r, nil)
		}
		return Collection{Artifacts: arts}, nil
	}

	var (
		mu      sync.Mutex
		partial []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, r := range repos {
		g.Go(func() error {
			copyrights, err := c.fetchCopyrights(gctx, r)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn("license file fetch failed", "repo", r.GetFullName(), "err", err)
				mu.Lock()
				partial = append(partial, fmt.Errorf("%s: %w", r.GetFullName(), err))
				mu.Unlock()
			}
			arts[i] = RepositoryArtifact(r, copyrights)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Collection{}, err
	}
	return Collection{Artifacts: arts, Partial: partial}, nil
}

// fetchCopyrights reads the repository's license file and extracts its
// copyright lines. A repository without a license file has none.
func (c *GitHubCollector) fetchCopyrights(ctx context.Context, r *github.Repository) ([]string, error) {
	lic, _, err := c.client.Client.Repositories.License(ctx, r.GetOwner().GetLogin(), r.GetName())
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch license file: %w", err)
	}
	text, err := decodeContent(lic.GetContent(), lic.GetEncoding())
	if err != nil {
		return nil, err
	}
	return ExtractCopyrights(text), nil
}

func decodeContent(content, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8":
		return content, nil
	case "base64":
		// The contents API wraps base64 at 60 columns.
		raw, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\n", "", "\r", "").Replace(content))
		if err != nil {
			return "", fmt.Errorf("decode license file: %w", err)
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("decode license file: unsupported encoding %q", encoding)
	}
}

// ExtractCopyrights returns the copyright notices found in a license text:
// lines starting with "Copyright", "(c)" or "©". Template placeholders such
// as "Copyright [yyyy] [name of copyright owner]" are skipped.
func ExtractCopyrights(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		if !strings.HasPrefix(lower, "copyright ") && !strings.HasPrefix(lower, "(c) ") && !strings.HasPrefix(line, "©") {
			continue
		}
		if isPlaceholderNotice(lower) {
			continue
		}
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	return out
}

func isPlaceholderNotice(lower string) bool {
	for _, marker := range []string{"[yyyy]", "{yyyy}", "<year>", "[year]", "{year}", "copyright notice", "copyright holders"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RepositoryArtifact maps a repository onto an artifact: the full name is the
// artifact name, the default branch its version.
func RepositoryArtifact(r *github.Repository, copyrights []string) artifact.Artifact {
	var licenses []string
	if id := strings.TrimSpace(r.GetLicense().GetSPDXID()); id != "" && !strings.EqualFold(id, noAssertion) {
		licenses = []string{id}
	}

	meta := map[string]string{
		MetadataArchived:   strconv.FormatBool(r.GetArchived()),
		MetadataFork:       strconv.FormatBool(r.GetFork()),
		MetadataVisibility: repoVisibility(r),
	}
	if u := r.GetHTMLURL(); u != "" {
		meta[MetadataURL] = u
	}
	if len(r.Topics) > 0 {
		topics := slices.Clone(r.Topics)
		slices.Sort(topics)
		meta[rules.TopicsMetadataKey] = strings.Join(topics, ",")
	}

	return artifact.New(artifact.Coordinates{
		Name:    r.GetFullName(),
		Version: r.GetDefaultBranch(),
		Source:  SourceGitHub,
	}, licenses, copyrights, meta)
}
