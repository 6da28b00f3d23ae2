package occupancy

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"table-occupancy/internal/domain"
)

// Matcher decides which active order, if any, occupies a table. Orders and
// tables share no key today; implementations own whatever correlation rule
// applies so the projector never parses free text itself.
type Matcher interface {
	Match(table domain.Table, orders []domain.ActiveOrder) (domain.ActiveOrder, bool)
}

// TextMatcher correlates by the free-text source and customer name an order
// was taken with, e.g. "POS-Table 5", "table-5" or a customer named "5".
type TextMatcher struct{}

func (TextMatcher) Match(table domain.Table, orders []domain.ActiveOrder) (domain.ActiveOrder, bool) {
	name := normalize(table.Name)
	if name == "" {
		return domain.ActiveOrder{}, false
	}
	for _, o := range orders {
		if !o.Status.IsActive() {
			continue
		}
		if matches(name, o) {
			return o, true
		}
	}
	return domain.ActiveOrder{}, false
}

// Count returns how many active orders claim the table.
func (TextMatcher) Count(table domain.Table, orders []domain.ActiveOrder) int {
	name := normalize(table.Name)
	if name == "" {
		return 0
	}
	n := 0
	for _, o := range orders {
		if o.Status.IsActive() && matches(name, o) {
			n++
		}
	}
	return n
}

func matches(name string, o domain.ActiveOrder) bool {
	source := normalize(o.Source)
	customer := normalize(o.CustomerName)

	switch {
	case containsToken(source, "table "+name):
		return true
	case containsToken(source, "table-"+name):
		return true
	case source == "pos-table "+name:
		return true
	case customer == "table "+name:
		return true
	case customer == name:
		return true
	}
	return false
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// containsToken reports whether needle occurs in s and is not directly
// followed by a letter or digit, so "table 52" does not contain "table 5".
func containsToken(s, needle string) bool {
	for from := 0; from <= len(s)-len(needle); {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return false
		}
		end := from + i + len(needle)
		if end == len(s) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(s[end:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		from += i + 1
	}
	return false
}
