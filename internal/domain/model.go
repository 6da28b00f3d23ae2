package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TenantID scopes every read and every session to one restaurant.
type TenantID string

// Valid reports whether the id carries a usable tenant scope.
func (t TenantID) Valid() bool { return strings.TrimSpace(string(t)) != "" }

type OrderStatus string

const (
	OrderNew       OrderStatus = "new"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderHeld      OrderStatus = "held"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// ActiveStatuses is the status filter sent to the order feed.
var ActiveStatuses = []OrderStatus{OrderNew, OrderPreparing, OrderReady, OrderHeld}

func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderNew, OrderPreparing, OrderReady, OrderHeld:
		return true
	default:
		return false
	}
}

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
)

// Table is a row of the tenant's table registry. LegacyStatus mirrors the
// persisted status column; projections never read it.
type Table struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Capacity     int    `json:"capacity"`
	LegacyStatus string `json:"legacy_status,omitempty"`
}

type OrderItem struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type ActiveOrder struct {
	ID                   string      `json:"id"`
	Source               string      `json:"source"`
	CustomerName         string      `json:"customer_name"`
	Items                []OrderItem `json:"items"`
	Status               OrderStatus `json:"status"`
	ItemCompletionStatus []bool      `json:"item_completion_status"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// TableProjection is derived on every recompute and never persisted.
type TableProjection struct {
	TableID              string          `json:"table_id"`
	Status               TableStatus     `json:"status"`
	ActiveOrderID        string          `json:"active_order_id,omitempty"`
	ActiveOrderTotal     decimal.Decimal `json:"active_order_total"`
	ActiveOrderItemCount int             `json:"active_order_item_count"`
	AllItemsDelivered    bool            `json:"all_items_delivered"`
	OrderCreatedAt       *time.Time      `json:"order_created_at,omitempty"`
	LastActivityAt       *time.Time      `json:"last_activity_at,omitempty"`
}
