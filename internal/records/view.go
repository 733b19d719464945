// Package records implements the derived read view over customer records:
// free-text search, per-column filters and single-column sorting, all over
// an in-memory slice the way the table surface consumed it.
package records

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/j-keen/flexicrm/internal/rules"
	"github.com/j-keen/flexicrm/internal/schema"
)

// Record is a customer record: server-assigned identity plus a dynamic
// document keyed by field id. Unknown keys (deleted fields) are passed
// through untouched and skipped by renderers.
type Record struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Fields    map[string]any `json:"fields"`
}

// FilterOperator is a per-column filter mode. All operators are
// case-insensitive.
type FilterOperator string

const (
	OpContains   FilterOperator = "contains"
	OpEquals     FilterOperator = "equals"
	OpStartsWith FilterOperator = "startsWith"
	OpEndsWith   FilterOperator = "endsWith"
)

type ColumnFilter struct {
	FieldID  string         `json:"fieldId"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type SortSpec struct {
	FieldID   string        `json:"fieldId"`
	Direction SortDirection `json:"direction"`
}

// Query describes one derived view over a record set.
type Query struct {
	Search  string
	Filters []ColumnFilter
	Sort    *SortSpec
}

var collator = collate.New(language.Und, collate.Loose)

// View applies global search, column filters and sorting in that order and
// returns a new slice; the input is left untouched.
func View(items []Record, fields []schema.FieldDefinition, q Query) []Record {
	visible := visibleFields(fields)

	out := make([]Record, 0, len(items))
	search := strings.ToLower(strings.TrimSpace(q.Search))
	for _, item := range items {
		if search != "" && !matchesSearch(item, visible, search) {
			continue
		}
		if !matchesFilters(item, q.Filters) {
			continue
		}
		out = append(out, item)
	}

	if q.Sort != nil {
		sortRecords(out, *q.Sort)
	}
	return out
}

func visibleFields(fields []schema.FieldDefinition) []schema.FieldDefinition {
	out := make([]schema.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if f.Visible {
			out = append(out, f)
		}
	}
	schema.SortFields(out)
	return out
}

// matchesSearch is a case-insensitive substring match across the stringified
// values of visible fields only; hidden fields never match.
func matchesSearch(item Record, visible []schema.FieldDefinition, search string) bool {
	for _, f := range visible {
		value, ok := item.Fields[f.ID]
		if !ok || value == nil {
			continue
		}
		if strings.Contains(strings.ToLower(rules.Stringify(value)), search) {
			return true
		}
	}
	return false
}

func matchesFilters(item Record, filters []ColumnFilter) bool {
	for _, filter := range filters {
		value, ok := item.Fields[filter.FieldID]
		if !ok || value == nil {
			return false
		}
		str := strings.ToLower(rules.Stringify(value))
		needle := strings.ToLower(filter.Value)
		switch filter.Operator {
		case OpContains:
			if !strings.Contains(str, needle) {
				return false
			}
		case OpEquals:
			if str != needle {
				return false
			}
		case OpStartsWith:
			if !strings.HasPrefix(str, needle) {
				return false
			}
		case OpEndsWith:
			if !strings.HasSuffix(str, needle) {
				return false
			}
		}
	}
	return true
}

// sortRecords sorts by one column: numeric subtraction when both values are
// numbers, locale-aware string comparison otherwise. Nulls sort last
// regardless of direction.
func sortRecords(items []Record, spec SortSpec) {
	desc := spec.Direction == SortDesc
	sort.SliceStable(items, func(i, j int) bool {
		a, aok := items[i].Fields[spec.FieldID]
		b, bok := items[j].Fields[spec.FieldID]
		aNull := !aok || a == nil
		bNull := !bok || b == nil
		if aNull && bNull {
			return false
		}
		if aNull {
			return false
		}
		if bNull {
			return true
		}

		var cmp int
		aNum, aIsNum := asNumber(a)
		bNum, bIsNum := asNumber(b)
		if aIsNum && bIsNum {
			switch {
			case aNum < bNum:
				cmp = -1
			case aNum > bNum:
				cmp = 1
			}
		} else {
			cmp = collator.CompareString(rules.Stringify(a), rules.Stringify(b))
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func asNumber(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}
