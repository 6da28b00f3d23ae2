package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/config"
	"table-occupancy/internal/domain"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource follows payment status changes. Messages are keyed by tenant;
// an unkeyed message falls back to the tenant_id in its body.
type KafkaSource struct {
	cfg       config.KafkaConfig
	instance  string
	newReader func(groupID string) messageReader
	lg        *logger.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, lg *logger.Logger) *KafkaSource {
	s := &KafkaSource{cfg: cfg, instance: uuid.NewString(), lg: lg}
	s.newReader = func(groupID string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     groupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWait:     500 * time.Millisecond,
		})
	}
	return s
}

func (s *KafkaSource) Name() string { return "kafka" }

// GroupID is stable per process and tenant, so a resubscribe resumes from
// the committed offset.
func (s *KafkaSource) GroupID(tenant domain.TenantID) string {
	return fmt.Sprintf("%s-%s-%s", s.cfg.GroupPrefix, tenant, s.instance)
}

func (s *KafkaSource) Subscribe(ctx context.Context, tenant domain.TenantID, sink func(domain.ChangeEvent)) error {
	r := s.newReader(s.GroupID(tenant))
	defer func() { _ = r.Close() }()

	s.lg.Info("subscription_started", map[string]any{
		"source": s.Name(), "tenant": string(tenant), "topic": s.cfg.Topic,
	})
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.cfg.Topic, err)
		}
		at := msg.Time
		if at.IsZero() {
			at = time.Now()
		}
		ev := decodeEvent(domain.RecordPayment, msg.Value, at)
		if len(msg.Key) > 0 {
			ev.Tenant = domain.TenantID(msg.Key)
		}
		sink(ev)
	}
}
