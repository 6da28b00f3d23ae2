package occupancy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/config"
	"table-occupancy/internal/domain"
)

func testLogger(t *testing.T) *logger.Logger {
	return logger.FromZap(zaptest.NewLogger(t), "occupancy-test")
}

// fakeUpstream serves both TableRegistry and OrderFeed from memory. When gate
// is set every call blocks on it.
type fakeUpstream struct {
	mu     sync.Mutex
	tables []domain.Table
	orders []domain.ActiveOrder
	err    error
	gate   chan struct{}

	tableCalls  atomic.Int32
	orderCalls  atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeUpstream) set(tables []domain.Table, orders []domain.ActiveOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = tables
	f.orders = orders
}

func (f *fakeUpstream) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeUpstream) enter(ctx context.Context) error {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeUpstream) ListTables(ctx context.Context, _ domain.TenantID) ([]domain.Table, error) {
	f.tableCalls.Add(1)
	defer f.inFlight.Add(-1)
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Table(nil), f.tables...), nil
}

func (f *fakeUpstream) ListActiveOrders(ctx context.Context, _ domain.TenantID, _ []domain.OrderStatus) ([]domain.ActiveOrder, error) {
	f.orderCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ActiveOrder(nil), f.orders...), nil
}

// fetcher adapts the fake to a Store fetch function.
func (f *fakeUpstream) fetcher() Fetcher {
	return func(ctx context.Context) (Input, error) {
		tables, err := f.ListTables(ctx, "")
		if err != nil {
			return Input{}, err
		}
		orders, _ := f.ListActiveOrders(ctx, "", domain.ActiveStatuses)
		return Input{Tables: tables, Orders: orders}, nil
	}
}

// fakeSource is a ChangeSource driven by the test through emit and fail.
type fakeSource struct {
	name string

	mu       sync.Mutex
	sink     func(domain.ChangeEvent)
	failures chan error

	subscribes atomic.Int32
	active     atomic.Int32
}

func newFakeSource(name string) *fakeSource {
	return &fakeSource{name: name, failures: make(chan error, 1)}
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Subscribe(ctx context.Context, _ domain.TenantID, sink func(domain.ChangeEvent)) error {
	s.subscribes.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.sink = nil
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-s.failures:
		return err
	}
}

func (s *fakeSource) emit(ev domain.ChangeEvent) bool {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return false
	}
	sink(ev)
	return true
}

func (s *fakeSource) fail(err error) { s.failures <- err }

// countingStore records invalidator calls.
type countingStore struct {
	stale    atomic.Int32
	triggers atomic.Int32
	mu       sync.Mutex
	origins  []string
}

func (c *countingStore) MarkStale() { c.stale.Add(1) }

func (c *countingStore) Trigger(origin string) <-chan struct{} {
	c.triggers.Add(1)
	c.mu.Lock()
	c.origins = append(c.origins, origin)
	c.mu.Unlock()
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (c *countingStore) originList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.origins...)
}

func testOccupancyConfig() config.OccupancyConfig {
	return config.OccupancyConfig{
		FreshnessWindow:  time.Minute,
		FallbackInterval: time.Hour,
		Debounce:         10 * time.Millisecond,
		FetchTimeout:     time.Second,
		RetryBackoffMin:  20 * time.Millisecond,
		ResubscribeDelay: 20 * time.Millisecond,
		SessionLinger:    0,
	}
}
