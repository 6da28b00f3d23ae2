package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-occupancy/internal/domain"
)

func TestTablesRepo_ListTables(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{data: [][]any{
		{"t1", "1", 4, "available"},
		{"t2", "Patio", 6, "occupied"},
	}}}
	tables, err := NewTablesRepo(q).ListTables(context.Background(), "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, []domain.Table{
		{ID: "t1", Name: "1", Capacity: 4, LegacyStatus: "available"},
		{ID: "t2", Name: "Patio", Capacity: 6, LegacyStatus: "occupied"},
	}, tables)
	assert.Equal(t, []any{"tenant-a"}, q.args)
	assert.Contains(t, q.sql, "WHERE tenant_id = $1")
	assert.True(t, q.rows.closed)
}

func TestTablesRepo_Errors(t *testing.T) {
	_, err := NewTablesRepo(&fakeQuerier{err: errors.New("conn reset")}).ListTables(context.Background(), "x")
	assert.ErrorContains(t, err, "query tables")

	q := &fakeQuerier{rows: &fakeRows{err: errors.New("broken stream")}}
	_, err = NewTablesRepo(q).ListTables(context.Background(), "x")
	assert.ErrorContains(t, err, "broken stream")
}

func TestOrdersRepo_ListActiveOrders(t *testing.T) {
	created := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	updated := created.Add(5 * time.Minute)
	q := &fakeQuerier{rows: &fakeRows{data: [][]any{
		{"o1", "POS-Table 5", "", []byte(`[{"price":"10.00","quantity":2}]`), "preparing", []pgtype.Bool{{Bool: true, Valid: true}, {Bool: false, Valid: true}}, created, &updated},
		{"o2", "", "Alice", nil, "new", nil, created, nil},
	}}}

	orders, err := NewOrdersRepo(q).ListActiveOrders(context.Background(), "tenant-a", domain.ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	o1 := orders[0]
	assert.Equal(t, "o1", o1.ID)
	assert.Equal(t, "POS-Table 5", o1.Source)
	assert.Equal(t, domain.OrderPreparing, o1.Status)
	require.Len(t, o1.Items, 1)
	assert.Equal(t, "10", o1.Items[0].Price.String())
	assert.Equal(t, []bool{true, false}, o1.ItemCompletionStatus)
	assert.Equal(t, updated, o1.UpdatedAt)

	o2 := orders[1]
	assert.Equal(t, "Alice", o2.CustomerName)
	assert.Empty(t, o2.Items)
	assert.Equal(t, created, o2.UpdatedAt, "updated_at falls back to created_at")

	require.Len(t, q.args, 2)
	assert.Equal(t, "tenant-a", q.args[0])
	assert.Equal(t, []string{"new", "preparing", "ready", "held"}, q.args[1])
	assert.Contains(t, q.sql, "ORDER BY created_at, id")
}

func TestOrdersRepo_ScanError(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{data: [][]any{{"o1"}}}}
	_, err := NewOrdersRepo(q).ListActiveOrders(context.Background(), "tenant-a", domain.ActiveStatuses)
	assert.ErrorContains(t, err, "scan order")
}

func TestOrdersRepo_NullCompletionElementIsNotDelivered(t *testing.T) {
	created := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	q := &fakeQuerier{rows: &fakeRows{data: [][]any{
		{"o1", "table 5", "", []byte(`[{"price":"4.50","quantity":1},{"price":"3","quantity":1}]`), "ready",
			[]pgtype.Bool{{Bool: true, Valid: true}, {}}, created, nil},
	}}}

	orders, err := NewOrdersRepo(q).ListActiveOrders(context.Background(), "tenant-a", domain.ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, []bool{true, false}, orders[0].ItemCompletionStatus)
}
