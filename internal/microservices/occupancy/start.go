package occupancy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"table-occupancy/internal/common/httpx"
	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/config"
	"table-occupancy/internal/connections/database"
	"table-occupancy/internal/connections/rabbitmq"
	"table-occupancy/internal/connections/redis"
	"table-occupancy/internal/domain"
	"table-occupancy/internal/microservices/occupancy/handler"
	"table-occupancy/internal/microservices/occupancy/mirror"
	"table-occupancy/internal/microservices/occupancy/repository"
	"table-occupancy/internal/microservices/occupancy/service"
	"table-occupancy/internal/microservices/occupancy/subscription"
	engine "table-occupancy/internal/occupancy"
)

// Deps are the shared connections. Optional ones stay nil when disabled.
type Deps struct {
	Pool   *pgxpool.Pool
	Rabbit *rabbitmq.Client
	Redis  *goredis.Client
}

func Connect(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*Deps, error) {
	d := &Deps{}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	d.Pool = pool
	lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "port": cfg.Database.Port, "database": cfg.Database.Database})

	if cfg.RabbitMQ.Enabled {
		rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Rabbit = rmq
		lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "port": cfg.RabbitMQ.Port, "vhost": cfg.RabbitMQ.VHost})
	}

	if cfg.Redis.Enabled {
		rc, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Redis = rc
		lg.Info("redis_connected", map[string]any{"addr": cfg.Redis.Addr})
	}
	return d, nil
}

func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Rabbit != nil {
		d.Rabbit.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// Sources returns one change source per enabled feed.
func Sources(cfg *config.Config, d *Deps, lg *logger.Logger) []engine.ChangeSource {
	sources := []engine.ChangeSource{
		subscription.NewPGListenSource(d.Pool, cfg.Database.TablesChannel, lg),
	}
	if d.Rabbit != nil {
		sources = append(sources, subscription.NewRabbitSource(d.Rabbit, cfg.RabbitMQ, lg))
	}
	if cfg.Kafka.Enabled {
		sources = append(sources, subscription.NewKafkaSource(cfg.Kafka, lg))
	}
	return sources
}

// NewEngine wires the repositories, change sources and the optional mirror.
func NewEngine(cfg *config.Config, d *Deps, lg *logger.Logger, live bool) (*engine.Engine, error) {
	opts := []engine.Option{engine.WithLogger(lg)}
	if live {
		opts = append(opts, engine.WithSources(Sources(cfg, d, lg)...))
	}
	if d.Redis != nil {
		ttl := 2 * cfg.Occupancy.FallbackInterval
		opts = append(opts, engine.WithPublisher(mirror.NewRedisMirror(d.Redis, cfg.Redis.Prefix, ttl)))
	}
	return engine.NewEngine(cfg.Occupancy, repository.NewTablesRepo(d.Pool), repository.NewOrdersRepo(d.Pool), opts...)
}

func healthChecks(d *Deps) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"postgres": func(ctx context.Context) error { return d.Pool.Ping(ctx) },
	}
	if d.Rabbit != nil {
		checks["rabbitmq"] = func(context.Context) error { return d.Rabbit.Ping() }
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Run serves the occupancy HTTP API until ctx is done.
func Run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	d, err := Connect(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer d.Close()

	eng, err := NewEngine(cfg, d, lg, true)
	if err != nil {
		return err
	}
	defer eng.Close()

	svc := service.NewOccupancyService(eng)
	mux := handler.Router(handler.New(svc, healthChecks(d), lg))
	srv := httpx.New(":"+strconv.Itoa(cfg.HTTP.Port), mux)

	lg.Info("service_started", map[string]any{"service": "occupancy-service", "port": cfg.HTTP.Port})
	defer lg.Info("service_stopped", map[string]any{"service": "occupancy-service"})
	return srv.Run(ctx)
}

// Snapshot computes one projection for tenant and writes it to w as JSON.
func Snapshot(ctx context.Context, cfg *config.Config, tenant domain.TenantID, w io.Writer, lg *logger.Logger) error {
	d, err := Connect(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer d.Close()

	eng, err := NewEngine(cfg, d, lg, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	resp, err := service.NewOccupancyService(eng).GetOccupancy(ctx, tenant)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", tenant, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
