package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/domain"
)

// notifyConn is the part of *pgx.Conn a LISTEN session needs.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PGListenSource follows the table registry through Postgres LISTEN/NOTIFY.
// All tenant subscriptions share one connection taken out of the pool while
// at least one of them is active; notifications are routed by tenant.
type PGListenSource struct {
	channel string
	dial    func(ctx context.Context) (notifyConn, error)
	lg      *logger.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]pgSubscriber
	run    *listenRun
}

type pgSubscriber struct {
	tenant domain.TenantID
	sink   func(domain.ChangeEvent)
}

// listenRun is one lifetime of the shared connection. err is set before
// done is closed.
type listenRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewPGListenSource(pool *pgxpool.Pool, channel string, lg *logger.Logger) *PGListenSource {
	return &PGListenSource{
		channel: channel,
		dial: func(ctx context.Context) (notifyConn, error) {
			c, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return c.Hijack(), nil
		},
		lg:   lg,
		subs: make(map[int]pgSubscriber),
	}
}

func (s *PGListenSource) Name() string { return "postgres" }

// Subscribe blocks until ctx is done or the shared connection fails. A
// failure ends every subscription; the next Subscribe opens a new one.
func (s *PGListenSource) Subscribe(ctx context.Context, tenant domain.TenantID, sink func(domain.ChangeEvent)) error {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[int]pgSubscriber)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = pgSubscriber{tenant: tenant, sink: sink}
	run := s.run
	if run == nil {
		run = s.startLocked()
	}
	s.mu.Unlock()
	defer s.unsubscribe(id)

	select {
	case <-ctx.Done():
		return nil
	case <-run.done:
		return run.err
	}
}

func (s *PGListenSource) startLocked() *listenRun {
	ctx, cancel := context.WithCancel(context.Background())
	run := &listenRun{cancel: cancel, done: make(chan struct{})}
	s.run = run
	go func() {
		err := s.listen(ctx)
		s.mu.Lock()
		if s.run == run {
			s.run = nil
		}
		s.mu.Unlock()
		run.err = err
		close(run.done)
	}()
	return run
}

// unsubscribe drops a subscriber and closes the connection after the last.
func (s *PGListenSource) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	if len(s.subs) == 0 && s.run != nil {
		s.run.cancel()
		s.run = nil
	}
}

func (s *PGListenSource) listen(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(cctx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.channel, err)
	}
	s.lg.Info("subscription_started", map[string]any{"source": s.Name(), "channel": s.channel})

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		s.dispatch(decodeEvent(domain.RecordTable, []byte(n.Payload), time.Now()))
	}
}

// dispatch hands ev to its tenant's subscribers, or to all of them when the
// payload names no tenant.
func (s *PGListenSource) dispatch(ev domain.ChangeEvent) {
	s.mu.Lock()
	sinks := make([]func(domain.ChangeEvent), 0, len(s.subs))
	for _, sub := range s.subs {
		if ev.Tenant == "" || ev.Tenant == sub.tenant {
			sinks = append(sinks, sub.sink)
		}
	}
	s.mu.Unlock()

	for _, sink := range sinks {
		sink(ev)
	}
}
