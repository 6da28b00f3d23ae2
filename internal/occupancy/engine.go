package occupancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/common/metrics"
	"table-occupancy/internal/config"
	"table-occupancy/internal/domain"
)

// TableRegistry reads table identities for a tenant.
type TableRegistry interface {
	ListTables(ctx context.Context, tenant domain.TenantID) ([]domain.Table, error)
}

// OrderFeed reads orders in the given statuses, in feed order.
type OrderFeed interface {
	ListActiveOrders(ctx context.Context, tenant domain.TenantID, statuses []domain.OrderStatus) ([]domain.ActiveOrder, error)
}

// Publisher receives every new snapshot, e.g. to mirror it to a shared cache.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot) error
}

// View is what readers get: the last complete snapshot plus its age.
type View struct {
	Tenant       domain.TenantID
	Generation   uint64
	Projections  []domain.TableProjection
	LegacyStatus map[string]string
	ComputedAt   time.Time
	Age          time.Duration
	Degraded     bool
}

type Option func(*Engine)

func WithSources(sources ...ChangeSource) Option {
	return func(e *Engine) { e.sources = append(e.sources, sources...) }
}

func WithMatcher(m Matcher) Option { return func(e *Engine) { e.matcher = m } }

func WithLogger(lg *logger.Logger) Option { return func(e *Engine) { e.lg = lg } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// Engine owns one session per tenant with live readers. A session bundles
// the snapshot store, the change notifier and the staleness guard; it is
// started by the first Acquire and torn down SessionLinger after the last
// release.
type Engine struct {
	cfg       config.OccupancyConfig
	tables    TableRegistry
	orders    OrderFeed
	sources   []ChangeSource
	matcher   Matcher
	publisher Publisher
	lg        *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[domain.TenantID]*session
	closed   bool
}

type session struct {
	tenant domain.TenantID
	store  *Store
	cancel context.CancelFunc
	done   chan struct{}
	refs   int
	linger *time.Timer
}

func NewEngine(cfg config.OccupancyConfig, tables TableRegistry, orders OrderFeed, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		tables:   tables,
		orders:   orders,
		matcher:  TextMatcher{},
		now:      time.Now,
		sessions: make(map[domain.TenantID]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lg == nil {
		e.lg = logger.New("occupancy")
	}
	return e, nil
}

// Acquire keeps the tenant's session alive until release is called. The
// first Acquire starts the subscriptions and the fallback timer.
func (e *Engine) Acquire(tenant domain.TenantID) (release func(), err error) {
	_, release, err = e.acquire(tenant)
	return release, err
}

func (e *Engine) acquire(tenant domain.TenantID) (*session, func(), error) {
	if !tenant.Valid() {
		return nil, nil, ErrMissingTenant
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil, ErrEngineClosed
	}

	s := e.sessions[tenant]
	if s == nil {
		s = e.startSession(tenant)
		e.sessions[tenant] = s
	}
	if s.linger != nil {
		s.linger.Stop()
		s.linger = nil
	}
	s.refs++

	var once sync.Once
	return s, func() { once.Do(func() { e.release(s) }) }, nil
}

func (e *Engine) release(s *session) {
	e.mu.Lock()
	s.refs--
	if s.refs > 0 || e.sessions[s.tenant] != s {
		e.mu.Unlock()
		return
	}
	if e.cfg.SessionLinger <= 0 {
		e.detachLocked(s)
		e.mu.Unlock()
		e.stopSession(s)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(e.cfg.SessionLinger, func() {
		e.mu.Lock()
		if s.linger != t || s.refs > 0 || e.sessions[s.tenant] != s {
			e.mu.Unlock()
			return
		}
		e.detachLocked(s)
		e.mu.Unlock()
		e.stopSession(s)
	})
	s.linger = t
	e.mu.Unlock()
}

func (e *Engine) startSession(tenant domain.TenantID) *session {
	lg := e.lg.With(map[string]any{"tenant": string(tenant)})
	store := NewStore(tenant, e.fetcher(tenant), e.matcher, StoreConfig{
		FetchTimeout:    e.cfg.FetchTimeout,
		RetryBackoffMin: e.cfg.RetryBackoffMin,
		RetryBackoffMax: e.cfg.FallbackInterval,
	}, lg)
	store.now = e.now
	if e.publisher != nil {
		store.OnPublish(e.publish)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{tenant: tenant, store: store, cancel: cancel, done: make(chan struct{})}

	notifier := NewNotifier(tenant, e.sources, store, NotifierConfig{
		Debounce:            e.cfg.Debounce,
		ResubscribeDelay:    e.cfg.ResubscribeDelay,
		MaxResubscribeDelay: e.cfg.FallbackInterval,
	}, lg)
	guard := NewGuard(store, e.cfg.FallbackInterval, lg)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); notifier.Run(ctx) }()
	go func() { defer wg.Done(); guard.Run(ctx) }()
	go func() { wg.Wait(); close(s.done) }()

	store.Trigger("start")
	metrics.ActiveSessions.Inc()
	lg.Info("session_started", map[string]any{"sources": len(e.sources)})
	return s
}

func (e *Engine) detachLocked(s *session) {
	delete(e.sessions, s.tenant)
	s.cancel()
}

// stopSession waits for the notifier, guard and store to exit.
func (e *Engine) stopSession(s *session) {
	s.cancel()
	<-s.done
	s.store.Close()
	metrics.ActiveSessions.Dec()
	e.lg.Info("session_stopped", map[string]any{"tenant": string(s.tenant)})
}

func (e *Engine) fetcher(tenant domain.TenantID) Fetcher {
	return func(ctx context.Context) (Input, error) {
		var in Input
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			tables, err := e.tables.ListTables(gctx, tenant)
			if err != nil {
				return fmt.Errorf("list tables: %w", err)
			}
			in.Tables = tables
			return nil
		})
		g.Go(func() error {
			orders, err := e.orders.ListActiveOrders(gctx, tenant, domain.ActiveStatuses)
			if err != nil {
				return fmt.Errorf("list active orders: %w", err)
			}
			in.Orders = orders
			return nil
		})
		if err := g.Wait(); err != nil {
			return Input{}, err
		}
		return in, nil
	}
}

func (e *Engine) publish(snap *Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FetchTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, snap); err != nil {
		e.lg.Warn("snapshot_publish_failed", err, map[string]any{
			"tenant": string(snap.Tenant), "generation": snap.Generation,
		})
	}
}

// GetProjections returns the tenant's current projection without waiting
// for an in-flight recompute. A stale or expired snapshot is still served;
// a recompute is started in the background unless a failed run is waiting
// for its retry. Only before the very first snapshot does the call wait,
// bounded by ctx.
func (e *Engine) GetProjections(ctx context.Context, tenant domain.TenantID) (View, error) {
	s, release, err := e.acquire(tenant)
	if err != nil {
		return View{}, err
	}
	defer release()
	return e.read(ctx, s)
}

func (e *Engine) read(ctx context.Context, s *session) (View, error) {
	snap := s.store.Current()
	if snap == nil {
		if s.store.Backoff() {
			return View{}, ErrSnapshotUnavailable
		}
		select {
		case <-s.store.Join("read"):
		case <-ctx.Done():
			return View{}, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, ctx.Err())
		}
		if snap = s.store.Current(); snap == nil {
			return View{}, ErrSnapshotUnavailable
		}
		return e.view(s, snap), nil
	}

	if s.store.Stale() || e.now().Sub(snap.ComputedAt) >= e.cfg.FreshnessWindow {
		s.store.TryTrigger("read")
	}
	return e.view(s, snap), nil
}

// ForceRefresh invalidates the tenant and waits for the resulting run.
// A failed run is reported through View.Degraded, not as an error.
func (e *Engine) ForceRefresh(ctx context.Context, tenant domain.TenantID) (View, error) {
	s, release, err := e.acquire(tenant)
	if err != nil {
		return View{}, err
	}
	defer release()

	s.store.MarkStale()
	select {
	case <-s.store.Trigger("manual"):
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	snap := s.store.Current()
	if snap == nil {
		return View{}, ErrSnapshotUnavailable
	}
	return e.view(s, snap), nil
}

// LastUpdatedAt is the completion time of the last successful computation.
func (e *Engine) LastUpdatedAt(ctx context.Context, tenant domain.TenantID) (time.Time, error) {
	v, err := e.GetProjections(ctx, tenant)
	if err != nil {
		return time.Time{}, err
	}
	return v.ComputedAt, nil
}

// Watch emits the current view and then one view per new generation until
// ctx is done. The session stays acquired while the watch is open.
func (e *Engine) Watch(ctx context.Context, tenant domain.TenantID) (<-chan View, error) {
	s, release, err := e.acquire(tenant)
	if err != nil {
		return nil, err
	}

	out := make(chan View, 1)
	go func() {
		defer close(out)
		defer release()

		var last uint64
		for {
			changed := s.store.Changed()
			if snap := s.store.Current(); snap != nil && snap.Generation != last {
				last = snap.Generation
				select {
				case out <- e.view(s, snap):
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (e *Engine) view(s *session, snap *Snapshot) View {
	return View{
		Tenant:       snap.Tenant,
		Generation:   snap.Generation,
		Projections:  snap.Projections,
		LegacyStatus: snap.LegacyStatus,
		ComputedAt:   snap.ComputedAt,
		Age:          e.now().Sub(snap.ComputedAt),
		Degraded:     s.store.Degraded(),
	}
}

// Sessions returns the number of live tenant sessions.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Close stops every session regardless of outstanding references.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		if s.linger != nil {
			s.linger.Stop()
		}
		e.detachLocked(s)
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		e.stopSession(s)
	}
}
