package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/config"
	"table-occupancy/internal/connections/rabbitmq"
	"table-occupancy/internal/domain"
)

const tenantHeader = "x-tenant-id"

var errDeliveriesClosed = errors.New("delivery channel closed")

// RabbitSource follows order status changes published on the notifications
// exchange. Every subscription binds its own exclusive, auto-deleted queue,
// so nothing is left on the broker once it ends.
type RabbitSource struct {
	client *rabbitmq.Client
	cfg    config.RabbitMQConfig
	lg     *logger.Logger
}

func NewRabbitSource(client *rabbitmq.Client, cfg config.RabbitMQConfig, lg *logger.Logger) *RabbitSource {
	return &RabbitSource{client: client, cfg: cfg, lg: lg}
}

func (s *RabbitSource) Name() string { return "rabbitmq" }

func (s *RabbitSource) Subscribe(ctx context.Context, tenant domain.TenantID, sink func(domain.ChangeEvent)) error {
	ch, err := s.client.OpenChannel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))

	if err := ch.ExchangeDeclare(s.cfg.Exchange, s.cfg.ExchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", s.cfg.Exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey(s.cfg.ExchangeKind, tenant), s.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "occupancy-"+string(tenant), true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	s.lg.Info("subscription_started", map[string]any{
		"source": s.Name(), "tenant": string(tenant), "exchange": s.cfg.Exchange, "queue": q.Name,
	})

	return consumeDeliveries(ctx, deliveries, closeCh, sink)
}

// bindingKey narrows topic exchanges to the tenant; fanout ignores keys.
func bindingKey(kind string, tenant domain.TenantID) string {
	if kind == amqp.ExchangeTopic {
		return "orders." + string(tenant) + ".#"
	}
	return ""
}

func consumeDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery, closeCh <-chan *amqp.Error, sink func(domain.ChangeEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-closeCh:
			if ok && e != nil {
				return fmt.Errorf("amqp channel closed: %d %s", e.Code, e.Reason)
			}
			return errDeliveriesClosed
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			sink(deliveryEvent(d))
		}
	}
}

func deliveryEvent(d amqp.Delivery) domain.ChangeEvent {
	at := d.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	ev := decodeEvent(domain.RecordOrder, d.Body, at)
	if v, ok := d.Headers[tenantHeader].(string); ok && v != "" {
		ev.Tenant = domain.TenantID(v)
	}
	return ev
}
