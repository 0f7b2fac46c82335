package bridge

import (
	"context"
	"time"

	"github.com/wdchenxyz/agent-rina/internal/core"
)

// DefaultBackoff is the fixed ordered list of delays between delivery
// attempts. No jitter: retries are deterministic.
var DefaultBackoff = []time.Duration{
	400 * time.Millisecond,
	1200 * time.Millisecond,
	2500 * time.Millisecond,
}

// Retry performs one delivery with resilience to transient network failure.
// Attempts are bounded at len(Backoff)+1; only errors classified as
// transient (core.IsTransient) are retried, everything else propagates
// immediately.
type Retry struct {
	Backoff []time.Duration
}

func NewRetry() *Retry {
	return &Retry{Backoff: DefaultBackoff}
}

// Do runs fn, retrying per the backoff schedule. The last error is returned
// when the budget is exhausted. Callers must not invoke Do twice for the same
// logical content: there is no cross-call deduplication.
func (r *Retry) Do(ctx context.Context, fn func() error) error {
	err := fn()
	for i := 0; err != nil && i < len(r.Backoff); i++ {
		if !core.IsTransient(err) {
			return err
		}
		if serr := sleepCtx(ctx, r.Backoff[i]); serr != nil {
			return serr
		}
		err = fn()
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
