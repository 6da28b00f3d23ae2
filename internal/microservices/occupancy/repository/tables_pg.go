package repository

import (
	"context"
	"fmt"

	"table-occupancy/internal/domain"
)

type TablesRepoInterface interface {
	ListTables(ctx context.Context, tenant domain.TenantID) ([]domain.Table, error)
}

type TablesRepo struct {
	db Querier
}

func NewTablesRepo(db Querier) *TablesRepo { return &TablesRepo{db: db} }

const listTablesSQL = `
SELECT id, COALESCE(name,''), COALESCE(capacity,0), COALESCE(status,'')
FROM restaurant_tables
WHERE tenant_id = $1
ORDER BY name, id
`

func (r *TablesRepo) ListTables(ctx context.Context, tenant domain.TenantID) ([]domain.Table, error) {
	rows, err := r.db.Query(ctx, listTablesSQL, string(tenant))
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var out []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.Name, &t.Capacity, &t.LegacyStatus); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
