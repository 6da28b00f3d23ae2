package occupancy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/common/metrics"
	"table-occupancy/internal/domain"
)

// Input is one consistent read of both upstream sources.
type Input struct {
	Tables []domain.Table
	Orders []domain.ActiveOrder
}

// Fetcher reads the full current state for one tenant.
type Fetcher func(ctx context.Context) (Input, error)

// Snapshot is immutable once published.
type Snapshot struct {
	Tenant       domain.TenantID
	Generation   uint64
	Projections  []domain.TableProjection
	LegacyStatus map[string]string
	ComputedAt   time.Time
}

type StoreConfig struct {
	FetchTimeout    time.Duration
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration
}

// Store keeps the last snapshot of one tenant. Readers load it through an
// atomic pointer and never wait for a computation. Computations are
// single-flighted: triggers that arrive while one runs collapse into exactly
// one follow-up run.
type Store struct {
	tenant    domain.TenantID
	fetch     Fetcher
	matcher   Matcher
	cfg       StoreConfig
	lg        *logger.Logger
	now       func() time.Time
	onPublish func(*Snapshot)

	ctx    context.Context
	cancel context.CancelFunc

	current       atomic.Pointer[Snapshot]
	degraded      atomic.Bool
	invalidations atomic.Uint64
	cleared       atomic.Uint64

	mu       sync.Mutex
	running  bool
	pending  bool
	curDone  chan struct{}
	nextDone chan struct{}
	changed  chan struct{}
	backoff  time.Duration
	retry    *time.Timer
	retryAt  time.Time
	closed   bool
	wg       sync.WaitGroup
}

func NewStore(tenant domain.TenantID, fetch Fetcher, m Matcher, cfg StoreConfig, lg *logger.Logger) *Store {
	if m == nil {
		m = TextMatcher{}
	}
	if lg == nil {
		lg = logger.New("occupancy")
	}
	if cfg.RetryBackoffMax < cfg.RetryBackoffMin {
		cfg.RetryBackoffMax = cfg.RetryBackoffMin
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		tenant:  tenant,
		fetch:   fetch,
		matcher: m,
		cfg:     cfg,
		lg:      lg,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		changed: make(chan struct{}),
	}
}

// OnPublish registers a hook called from the compute goroutine after every
// successful swap. Must be set before the first Trigger.
func (s *Store) OnPublish(fn func(*Snapshot)) { s.onPublish = fn }

// Current returns the last complete snapshot, or nil before the first one.
func (s *Store) Current() *Snapshot { return s.current.Load() }

func (s *Store) Degraded() bool { return s.degraded.Load() }

// MarkStale records an invalidation. It is cleared only by a computation
// that started after it.
func (s *Store) MarkStale() { s.invalidations.Add(1) }

func (s *Store) Stale() bool { return s.invalidations.Load() > s.cleared.Load() }

// Changed returns a channel closed at the next successful publish.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Running reports whether a computation is in flight.
func (s *Store) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger requests a computation and returns a channel closed once a run
// that began after this call has finished (successfully or not).
func (s *Store) Trigger(origin string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	metrics.Triggers.WithLabelValues(origin).Inc()

	if s.running {
		s.pending = true
		if s.nextDone == nil {
			s.nextDone = make(chan struct{})
		}
		return s.nextDone
	}

	s.running = true
	s.curDone = make(chan struct{})
	done := s.curDone
	s.wg.Add(1)
	go s.loop()
	return done
}

// Join returns the completion channel of the in-flight run, starting a run
// when idle.
func (s *Store) Join(origin string) <-chan struct{} {
	s.mu.Lock()
	if s.running && !s.closed {
		done := s.curDone
		s.mu.Unlock()
		return done
	}
	s.mu.Unlock()
	return s.Trigger(origin)
}

// Backoff reports whether the last run failed and its scheduled retry has
// not fired yet.
func (s *Store) Backoff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.retryAt.IsZero() && time.Now().Before(s.retryAt)
}

// TryTrigger starts a computation only when none is in flight and no retry
// is pending. Reads use it so an outage is probed at the retry pace.
func (s *Store) TryTrigger(origin string) bool {
	if s.Running() || s.Backoff() {
		return false
	}
	s.Trigger(origin)
	return true
}

func (s *Store) loop() {
	defer s.wg.Done()
	for {
		s.runOnce()

		s.mu.Lock()
		close(s.curDone)
		if s.pending && !s.closed {
			s.pending = false
			s.curDone = s.nextDone
			s.nextDone = nil
			s.mu.Unlock()
			continue
		}
		if s.nextDone != nil {
			close(s.nextDone)
			s.nextDone = nil
		}
		s.pending = false
		s.running = false
		s.mu.Unlock()
		return
	}
}

func (s *Store) runOnce() {
	seen := s.invalidations.Load()
	started := s.now()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.FetchTimeout)
	in, err := s.fetch(ctx)
	cancel()

	metrics.RecomputeLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.fail(err)
		return
	}

	snap := &Snapshot{
		Tenant:       s.tenant,
		Generation:   1,
		Projections:  Project(in.Tables, in.Orders, s.matcher),
		LegacyStatus: legacyStatus(in.Tables),
		ComputedAt:   s.now(),
	}
	if prev := s.current.Load(); prev != nil {
		snap.Generation = prev.Generation + 1
	}
	s.current.Store(snap)
	s.cleared.Store(seen)
	s.degraded.Store(false)
	s.reportAmbiguous(in)

	s.mu.Lock()
	s.backoff = 0
	s.retryAt = time.Time{}
	if s.retry != nil {
		s.retry.Stop()
	}
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	tenant := string(s.tenant)
	metrics.Recomputes.WithLabelValues(tenant, "ok").Inc()
	metrics.Degraded.WithLabelValues(tenant).Set(0)
	metrics.Generation.WithLabelValues(tenant).Set(float64(snap.Generation))
	s.lg.Debug("snapshot_published", map[string]any{
		"tenant": tenant, "generation": snap.Generation, "tables": len(snap.Projections),
		"orders": len(in.Orders), "duration_ms": time.Since(started).Milliseconds(),
	})

	if s.onPublish != nil {
		s.onPublish(snap)
	}
}

// fail keeps the previous snapshot in force and schedules a retry.
func (s *Store) fail(err error) {
	s.degraded.Store(true)
	tenant := string(s.tenant)
	metrics.Recomputes.WithLabelValues(tenant, "error").Inc()
	metrics.Degraded.WithLabelValues(tenant).Set(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cfg.RetryBackoffMin <= 0 {
		s.lg.Warn("snapshot_refresh_failed", err, map[string]any{"tenant": tenant})
		return
	}
	if s.backoff == 0 {
		s.backoff = s.cfg.RetryBackoffMin
	} else {
		s.backoff *= 2
	}
	if s.backoff > s.cfg.RetryBackoffMax {
		s.backoff = s.cfg.RetryBackoffMax
	}
	if s.retry == nil {
		s.retry = time.AfterFunc(s.backoff, func() { s.Trigger("retry") })
	} else {
		s.retry.Reset(s.backoff)
	}
	s.retryAt = time.Now().Add(s.backoff)
	s.lg.Warn("snapshot_refresh_failed", err, map[string]any{
		"tenant": tenant, "retry_in_ms": s.backoff.Milliseconds(),
	})
}

func (s *Store) reportAmbiguous(in Input) {
	c, ok := s.matcher.(interface {
		Count(domain.Table, []domain.ActiveOrder) int
	})
	if !ok {
		return
	}
	for _, t := range in.Tables {
		if n := c.Count(t, in.Orders); n > 1 {
			metrics.AmbiguousMatches.Inc()
			s.lg.Debug("ambiguous_table_match", map[string]any{
				"tenant": string(s.tenant), "table_id": t.ID, "matches": n,
			})
		}
	}
}

// Close cancels any in-flight fetch and pending retry and waits for the
// compute goroutine to exit.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func legacyStatus(tables []domain.Table) map[string]string {
	out := make(map[string]string)
	for _, t := range tables {
		if t.LegacyStatus != "" {
			out[t.ID] = t.LegacyStatus
		}
	}
	return out
}
