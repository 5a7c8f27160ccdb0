package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Prober polls a health endpoint until it reports success or the context
// deadline passes. The caller bounds the overall wait through ctx.
type Prober struct {
	client   *http.Client
	interval time.Duration
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval overrides the delay between probe attempts.
func WithInterval(interval time.Duration) ProberOption {
	return func(p *Prober) { p.interval = interval }
}

// WithClient overrides the HTTP client used for probes.
func WithClient(client *http.Client) ProberOption {
	return func(p *Prober) { p.client = client }
}

// NewProber creates a Prober with a short per-request timeout so a single
// hung request cannot eat the whole probe budget.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe polls url until a 2xx response or ctx expires. The first attempt is
// made immediately.
func (p *Prober) Probe(ctx context.Context, url string) error {
	var lastErr error
	for {
		lastErr = p.probeOnce(ctx, url)
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("health probe against %s: %w (last attempt: %v)", url, ctx.Err(), lastErr)
		case <-time.After(p.interval):
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
