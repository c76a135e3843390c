package stack

import (
	"context"
	"time"

	"github.com/oisee/avrstack/pkg/result"
)

// Monitor calls fn with the analyzer's counters every interval until ctx is
// done. It is meant to run in its own goroutine next to Run.
func (a *Analyzer) Monitor(ctx context.Context, interval time.Duration, fn func(result.Stats)) {
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			fn(a.Stats())
		}
	}
}
