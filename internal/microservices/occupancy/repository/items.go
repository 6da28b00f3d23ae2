package repository

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"table-occupancy/internal/domain"
)

// DecodeItems reads the orders.items JSON array one element at a time. An
// element that cannot be read keeps its position with zero price and
// quantity; an unreadable array yields no items. Prices may be JSON numbers
// or numeric strings.
func DecodeItems(raw []byte) []domain.OrderItem {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}

	out := make([]domain.OrderItem, 0, len(elems))
	for _, e := range elems {
		var fields struct {
			Price    json.RawMessage `json:"price"`
			Quantity json.RawMessage `json:"quantity"`
		}
		if err := json.Unmarshal(e, &fields); err != nil {
			out = append(out, domain.OrderItem{Price: decimal.Zero})
			continue
		}
		out = append(out, domain.OrderItem{
			Price:    parsePrice(fields.Price),
			Quantity: parseQuantity(fields.Quantity),
		})
	}
	return out
}

func parsePrice(raw json.RawMessage) decimal.Decimal {
	s := unquote(raw)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func parseQuantity(raw json.RawMessage) int {
	s := unquote(raw)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// 2.0 is a valid JSON rendering of an integer quantity
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0
		}
		n = int(f)
	}
	if n < 0 {
		return 0
	}
	return n
}

func unquote(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}
