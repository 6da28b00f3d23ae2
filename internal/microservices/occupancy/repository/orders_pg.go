package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"table-occupancy/internal/domain"
)

type OrdersRepoInterface interface {
	ListActiveOrders(ctx context.Context, tenant domain.TenantID, statuses []domain.OrderStatus) ([]domain.ActiveOrder, error)
}

type OrdersRepo struct {
	db Querier
}

func NewOrdersRepo(db Querier) *OrdersRepo { return &OrdersRepo{db: db} }

// created_at, id is the feed order the matcher relies on.
const listActiveOrdersSQL = `
SELECT id, COALESCE(source,''), COALESCE(customer_name,''), items, status,
       item_completion_status, created_at, updated_at
FROM orders
WHERE tenant_id = $1 AND status = ANY($2)
ORDER BY created_at, id
`

func (r *OrdersRepo) ListActiveOrders(ctx context.Context, tenant domain.TenantID, statuses []domain.OrderStatus) ([]domain.ActiveOrder, error) {
	wanted := make([]string, 0, len(statuses))
	for _, s := range statuses {
		wanted = append(wanted, string(s))
	}

	rows, err := r.db.Query(ctx, listActiveOrdersSQL, string(tenant), wanted)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.ActiveOrder
	for rows.Next() {
		var (
			o          domain.ActiveOrder
			itemsRaw   []byte
			status     string
			completion []pgtype.Bool
			createdAt  time.Time
			updatedAt  *time.Time
		)
		if err := rows.Scan(&o.ID, &o.Source, &o.CustomerName, &itemsRaw, &status,
			&completion, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Items = DecodeItems(itemsRaw)
		o.Status = domain.OrderStatus(status)
		o.ItemCompletionStatus = completionFlags(completion)
		o.CreatedAt = createdAt
		o.UpdatedAt = createdAt
		if updatedAt != nil {
			o.UpdatedAt = *updatedAt
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// completionFlags reads a NULL element as "not delivered".
func completionFlags(raw []pgtype.Bool) []bool {
	if raw == nil {
		return nil
	}
	out := make([]bool, len(raw))
	for i, b := range raw {
		out[i] = b.Valid && b.Bool
	}
	return out
}
