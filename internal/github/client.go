package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

const userAgent = "licensemedic"

type Client struct {
	Client *github.Client
	HTTP   *http.Client
	// Budget is shared by every request the client makes.
	Budget *RateBudget
}

type options struct {
	// logger receives one debug record per request and response when set.
	logger  *slog.Logger
	baseURL string
	budget  *RateBudget
}

type Option func(*options)

// WithLogger traces every API round trip at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBaseURL points the client at a GitHub Enterprise Server (or a test server).
// The URL is the REST root, e.g. https://ghe.example.com/api/v3/.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimSpace(raw)
	}
}

// WithRateBudget shares a rate limit budget between clients. By default each
// client tracks its own.
func WithRateBudget(b *RateBudget) Option {
	return func(o *options) {
		o.budget = b
	}
}

// loggingRoundTripper wraps an underlying transport and logs each request and
// response (including latency).
type loggingRoundTripper struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("github api request", "method", req.Method, "url", req.URL.String())
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.logger.Debug("github api error", "method", req.Method, "url", req.URL.String(), "duration", dur, "error", err)
		return resp, err
	}
	t.logger.Debug("github api response", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "duration", dur)
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	if o.budget == nil {
		o.budget = NewRateBudget()
	}

	var transport http.RoundTripper = &budgetRoundTripper{base: http.DefaultTransport, budget: o.budget}
	if o.logger != nil {
		transport = &loggingRoundTripper{base: transport, logger: o.logger.With("component", "github")}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	// Always provide an http.Client so request logging works even without a token.
	tc := &http.Client{Transport: transport}

	gc := github.NewClient(tc)
	gc.UserAgent = userAgent
	if o.baseURL != "" {
		var err error
		gc, err = gc.WithEnterpriseURLs(o.baseURL, o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("github client: invalid base url %q: %w", o.baseURL, err)
		}
	}

	return &Client{
		Client: gc,
		HTTP:   tc,
		Budget: o.budget,
	}, nil
}

// Host returns the API host name, used to pick gh CLI credentials.
func (c *Client) Host() string {
	if c == nil || c.Client == nil || c.Client.BaseURL == nil {
		return "github.com"
	}
	host := c.Client.BaseURL.Hostname()
	if host == "api.github.com" {
		return "github.com"
	}
	return host
}
