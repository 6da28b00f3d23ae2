package occupancy

import (
	"time"

	"github.com/shopspring/decimal"

	"table-occupancy/internal/domain"
)

// Project maps every table to its occupancy. It performs no I/O and depends
// only on its arguments: equal inputs always produce equal output, in table
// order. Table.LegacyStatus plays no part in the result.
func Project(tables []domain.Table, orders []domain.ActiveOrder, m Matcher) []domain.TableProjection {
	out := make([]domain.TableProjection, 0, len(tables))
	for _, t := range tables {
		p := domain.TableProjection{
			TableID:          t.ID,
			Status:           domain.TableAvailable,
			ActiveOrderTotal: decimal.Zero,
		}
		if o, ok := m.Match(t, orders); ok {
			total, count := Totals(o.Items)
			p.Status = domain.TableOccupied
			p.ActiveOrderID = o.ID
			p.ActiveOrderTotal = total
			p.ActiveOrderItemCount = count
			p.AllItemsDelivered = AllDelivered(count, o.ItemCompletionStatus)
			p.OrderCreatedAt = timePtr(o.CreatedAt)
			p.LastActivityAt = timePtr(o.UpdatedAt)
		}
		out = append(out, p)
	}
	return out
}

// Totals sums price*quantity and quantity. Non-positive quantities count as zero.
func Totals(items []domain.OrderItem) (decimal.Decimal, int) {
	total := decimal.Zero
	count := 0
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		count += it.Quantity
	}
	return total, count
}

// AllDelivered is true when count > 0 and the first count completion flags
// are all set. A shorter flag slice means some unit is not delivered.
func AllDelivered(count int, completion []bool) bool {
	if count <= 0 || len(completion) < count {
		return false
	}
	for _, done := range completion[:count] {
		if !done {
			return false
		}
	}
	return true
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
