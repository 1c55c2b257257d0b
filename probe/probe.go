// Package probe waits for a worker's status interface to come up.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultMaxAttempts    = 30
	DefaultInterval       = time.Second
	DefaultRequestTimeout = time.Second
)

// ErrNotReady is returned when every attempt failed.
var ErrNotReady = errors.New("worker did not become ready")

// Policy bounds a readiness wait.
type Policy struct {
	MaxAttempts    int
	Interval       time.Duration // pause between attempts
	RequestTimeout time.Duration // per-attempt HTTP timeout
}

// DefaultPolicy allows roughly thirty seconds for a worker to start.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		Interval:       DefaultInterval,
		RequestTimeout: DefaultRequestTimeout,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = DefaultRequestTimeout
	}
	return p
}

// Budget is the longest a wait can take, ignoring request latency.
func (p Policy) Budget() time.Duration {
	p = p.withDefaults()
	return time.Duration(p.MaxAttempts-1) * p.Interval
}

// Prober polls status endpoints.
type Prober struct {
	log    log.Logger
	policy Policy
	client *http.Client
}

// New creates a prober. A nil client gets one with the policy's request timeout.
func New(logger log.Logger, policy Policy, client *http.Client) *Prober {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	policy = policy.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: policy.RequestTimeout}
	}
	return &Prober{log: logger, policy: policy, client: client}
}

// Policy returns the effective policy.
func (p *Prober) Policy() Policy {
	return p.policy
}

// WaitReady polls url until it answers with a 2xx status. Failed attempts are
// retried quietly; once the attempts run out the last error is returned
// wrapped in ErrNotReady. A done ctx ends the wait with ctx's error.
func (p *Prober) WaitReady(ctx context.Context, url string) error {
	start := time.Now()
	attempts := 0
	err := retry.Do0(ctx, p.policy.MaxAttempts, retry.Fixed(p.policy.Interval), func() error {
		attempts++
		return p.probe(ctx, url)
	})
	if err == nil {
		p.log.Debug("Worker ready", "url", url, "attempts", attempts, "elapsed", time.Since(start).Round(time.Millisecond))
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var permanent *retry.ErrFailedPermanently
	if errors.As(err, &permanent) && permanent.LastErr != nil {
		err = permanent.LastErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrNotReady, attempts, err)
}

func (p *Prober) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
