package occupancy

import (
	"context"
	"time"

	"table-occupancy/internal/common/logger"
)

// Guard recomputes on a fixed interval whether or not any change event
// arrived. With every change source down, Interval is the staleness bound.
type Guard struct {
	store    invalidator
	interval time.Duration
	lg       *logger.Logger
}

func NewGuard(store invalidator, interval time.Duration, lg *logger.Logger) *Guard {
	return &Guard{store: store, interval: interval, lg: lg}
}

func (g *Guard) Run(ctx context.Context) {
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.store.MarkStale()
			g.store.Trigger("fallback")
			g.lg.Debug("fallback_tick", nil)
		}
	}
}
