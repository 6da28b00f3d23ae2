package subscription

import (
	"encoding/json"
	"strings"
	"time"

	"table-occupancy/internal/domain"
)

// envelope covers the field names used by the three feeds. Only the tenant
// matters for routing; the rest is carried into logs.
type envelope struct {
	TenantID    string    `json:"tenant_id"`
	Record      string    `json:"record"`
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	TableID     string    `json:"table_id"`
	PaymentID   string    `json:"payment_id"`
	Op          string    `json:"op"`
	NewStatus   string    `json:"new_status"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// decodeEvent never fails: an unreadable body still invalidates, with no
// tenant attached.
func decodeEvent(kind domain.RecordKind, body []byte, now time.Time) domain.ChangeEvent {
	ev := domain.ChangeEvent{Kind: kind, OccurredAt: now}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ev
	}
	ev.Tenant = domain.TenantID(strings.TrimSpace(env.TenantID))
	if env.Record != "" {
		ev.Kind = domain.RecordKind(env.Record)
	}
	ev.RecordID = firstNonEmpty(env.ID, env.OrderID, env.OrderNumber, env.TableID, env.PaymentID)
	ev.Op = firstNonEmpty(env.Op, env.NewStatus, env.Status)
	switch {
	case !env.OccurredAt.IsZero():
		ev.OccurredAt = env.OccurredAt
	case !env.Timestamp.IsZero():
		ev.OccurredAt = env.Timestamp
	}
	return ev
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
