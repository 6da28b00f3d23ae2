package domain

import "time"

// RecordKind names the upstream feed a change notification came from.
type RecordKind string

const (
	RecordTable   RecordKind = "table"
	RecordOrder   RecordKind = "order"
	RecordPayment RecordKind = "payment"
)

// ChangeEvent is an at-least-once, unordered mutation notice. It only
// invalidates; its payload is never applied as a delta.
type ChangeEvent struct {
	Tenant     TenantID   `json:"tenant_id"`
	Kind       RecordKind `json:"record"`
	RecordID   string     `json:"id"`
	Op         string     `json:"op"`
	OccurredAt time.Time  `json:"occurred_at"`
}
