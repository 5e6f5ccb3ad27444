package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateBudget tracks the REST rate limit reported by GitHub and holds requests
// back once it is exhausted, until the reset time or a Retry-After cooldown
// passes.
type RateBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	trialSent bool
	now       func() time.Time
	// changed is closed and replaced whenever a response updates the budget.
	changed chan struct{}
}

// NewRateBudget starts from the authenticated REST quota until the first
// response reports the real one.
func NewRateBudget() *RateBudget {
	return &RateBudget{
		remaining: 5000,
		reset:     time.Now().Add(time.Hour),
		now:       time.Now,
		changed:   make(chan struct{}),
	}
}

func (b *RateBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Acquire takes one request from the budget, blocking while the budget is
// exhausted or cooling down.
func (b *RateBudget) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			// The window has rolled over but no response has confirmed it yet:
			// let a single trial request through and park everyone else on its answer.
			if !b.trialSent {
				b.trialSent = true
				b.mu.Unlock()
				return nil
			}
		default:
			until = b.reset
		}
		ch := b.changed
		b.mu.Unlock()

		if err := waitFor(ctx, ch, until, now); err != nil {
			return err
		}
	}
}

// waitFor blocks until ch closes, until passes, or ctx is done. A zero until
// waits on ch alone.
func waitFor(ctx context.Context, ch <-chan struct{}, until, now time.Time) error {
	var timeout <-chan time.Time
	if !until.IsZero() {
		timer := time.NewTimer(max(until.Sub(now), 0))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	case <-timeout:
	}
	return nil
}

// Observe updates the budget from the rate limit headers of a response.
func (b *RateBudget) Observe(resp *http.Response) {
	if b == nil || resp == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		if until := b.now().Add(time.Duration(seconds) * time.Second); until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}
	if val, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil && val >= 0 && val != b.remaining {
		b.remaining = val
		changed = true
	}
	if val, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil && val > 0 {
		if reset := time.Unix(val, 0); !reset.Equal(b.reset) {
			b.reset = reset
			changed = true
		}
	}

	if changed {
		b.trialSent = false
		close(b.changed)
		b.changed = make(chan struct{})
	}
}

// budgetRoundTripper spends one unit of the budget per request.
type budgetRoundTripper struct {
	base   http.RoundTripper
	budget *RateBudget
}

func (t *budgetRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.budget.Acquire(req.Context()); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		t.budget.Observe(resp)
	}
	return resp, err
}
