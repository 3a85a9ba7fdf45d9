package ynab

import (
	"fmt"
	"sync"
	"time"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
)

// slidingWindow bounds request count over a rolling time window. This is
// independent of the daily/monthly usage tracker: the ledger enforces its
// own per-hour ceiling server-side, and tripping it mid-run wastes budget.
type slidingWindow struct {
	now      func() time.Time
	requests []time.Time
	max      int
	window   time.Duration
	mu       sync.Mutex
}

func newSlidingWindow(maxRequests int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		max:    maxRequests,
		window: window,
		now:    time.Now,
	}
}

// tryAcquire records one request, or fails with a rate-limit error carrying
// the time until the window frees up.
func (w *slidingWindow) tryAcquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()

	kept := w.requests[:0]
	for _, at := range w.requests {
		if now.Sub(at) < w.window {
			kept = append(kept, at)
		}
	}
	w.requests = kept

	if len(w.requests) >= w.max {
		oldest := w.requests[0]
		resetIn := w.window - now.Sub(oldest)
		return fmt.Errorf("%w: window resets in %s", common.ErrRateLimit, resetIn.Round(time.Second))
	}

	w.requests = append(w.requests, now)
	return nil
}
