package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// TokenSource names where a resolved token came from. It is safe to log.
type TokenSource string

const (
	TokenSourceExplicit TokenSource = "explicit"
	TokenSourceGHCLI    TokenSource = "gh"
)

// TokenEnvVars are consulted in order before falling back to the gh CLI.
var TokenEnvVars = []string{"LICENSEMEDIC_GITHUB_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"}

// ghTimeout bounds `gh auth token` when the caller set no deadline.
const ghTimeout = 5 * time.Second

// ResolveAuthToken finds a GitHub token for host (github.com when empty): the
// provided value, then TokenEnvVars, then `gh auth token --hostname host`.
// An empty token with a nil error means nothing was configured.
func ResolveAuthToken(ctx context.Context, provided, host string) (string, TokenSource, error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		return tok, TokenSourceExplicit, nil
	}
	for _, name := range TokenEnvVars {
		if tok := strings.TrimSpace(os.Getenv(name)); tok != "" {
			return tok, TokenSource("env:" + name), nil
		}
	}

	if strings.TrimSpace(host) == "" {
		host = "github.com"
	}
	tok, err := ghCLIToken(ctx, host)
	if err != nil || tok == "" {
		return "", "", err
	}
	return tok, TokenSourceGHCLI, nil
}

// ghCLIToken asks the GitHub CLI for its stored token. A missing or logged-out
// gh yields an empty token; gh's own output is never surfaced since it may
// carry credentials.
func ghCLIToken(ctx context.Context, host string) (string, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ghTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "gh", "auth", "token", "--hostname", host)
	cmd.Env = append(withoutEnv(os.Environ(), "GH_PAGER"), "GH_PAGER=cat")
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, nil
}

func withoutEnv(env []string, key string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, key+"=") {
			out = append(out, e)
		}
	}
	return out
}
