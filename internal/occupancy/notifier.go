package occupancy

import (
	"context"
	"sync"
	"time"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/common/metrics"
	"table-occupancy/internal/domain"
)

// ChangeSource is one upstream mutation feed. Subscribe delivers events for
// tenant to sink until ctx is done (returning nil) or the transport fails
// (returning the error). Delivery is at-least-once and unordered.
type ChangeSource interface {
	Name() string
	Subscribe(ctx context.Context, tenant domain.TenantID, sink func(domain.ChangeEvent)) error
}

// invalidator is the part of Store the triggers need.
type invalidator interface {
	MarkStale()
	Trigger(origin string) <-chan struct{}
}

const minResubscribeDelay = 50 * time.Millisecond

type NotifierConfig struct {
	Debounce            time.Duration
	ResubscribeDelay    time.Duration
	MaxResubscribeDelay time.Duration
}

// Notifier turns change events into store invalidations. Every event marks
// the store stale at once; the recompute trigger fires Debounce after the
// first event of a burst, so a burst costs one recompute.
type Notifier struct {
	tenant  domain.TenantID
	sources []ChangeSource
	store   invalidator
	cfg     NotifierConfig
	lg      *logger.Logger
	signal  chan struct{}
}

func NewNotifier(tenant domain.TenantID, sources []ChangeSource, store invalidator, cfg NotifierConfig, lg *logger.Logger) *Notifier {
	if cfg.ResubscribeDelay < minResubscribeDelay {
		cfg.ResubscribeDelay = minResubscribeDelay
	}
	if cfg.MaxResubscribeDelay < cfg.ResubscribeDelay {
		cfg.MaxResubscribeDelay = cfg.ResubscribeDelay
	}
	return &Notifier{
		tenant:  tenant,
		sources: sources,
		store:   store,
		cfg:     cfg,
		lg:      lg,
		signal:  make(chan struct{}, 1),
	}
}

// Run blocks until ctx is done and every subscription has returned.
func (n *Notifier) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range n.sources {
		wg.Add(1)
		go func(src ChangeSource) {
			defer wg.Done()
			n.subscribe(ctx, src)
		}(src)
	}
	n.debounce(ctx)
	wg.Wait()
}

func (n *Notifier) subscribe(ctx context.Context, src ChangeSource) {
	name := src.Name()
	delay := n.cfg.ResubscribeDelay
	sink := func(ev domain.ChangeEvent) {
		if ev.Tenant != "" && ev.Tenant != n.tenant {
			return
		}
		metrics.ChangeEvents.WithLabelValues(name).Inc()
		n.store.MarkStale()
		select {
		case n.signal <- struct{}{}:
		default:
		}
	}

	for {
		started := time.Now()
		err := src.Subscribe(ctx, n.tenant, sink)
		if ctx.Err() != nil {
			return
		}
		// A subscription that stayed up for a while starts the backoff over.
		if time.Since(started) > n.cfg.MaxResubscribeDelay {
			delay = n.cfg.ResubscribeDelay
		}
		metrics.Resubscribes.WithLabelValues(name).Inc()
		n.lg.Warn("subscription_lost", err, map[string]any{
			"tenant": string(n.tenant), "source": name, "resubscribe_in_ms": delay.Milliseconds(),
		})

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay *= 2
		if delay > n.cfg.MaxResubscribeDelay {
			delay = n.cfg.MaxResubscribeDelay
		}
		// Anything may have changed while disconnected.
		n.store.MarkStale()
		n.store.Trigger("resubscribe")
	}
}

func (n *Notifier) debounce(ctx context.Context) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-n.signal:
			if fire != nil {
				continue
			}
			if n.cfg.Debounce <= 0 {
				n.store.Trigger("event")
				continue
			}
			timer = time.NewTimer(n.cfg.Debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			n.store.Trigger("event")
		}
	}
}
