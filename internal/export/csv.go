// Package export generates CSV exports of the current customer view and
// optionally archives them to object storage.
package export

import (
	"strings"
	"time"

	"github.com/j-keen/flexicrm/internal/records"
	"github.com/j-keen/flexicrm/internal/rules"
	"github.com/j-keen/flexicrm/internal/schema"
)

// BOM marks the file as UTF-8 for spreadsheet imports.
const BOM = "\uFEFF"

// Filename returns the canonical export name for a given day,
// customers_<ISO date>.csv.
func Filename(now time.Time) string {
	return "customers_" + now.UTC().Format("2006-01-02") + ".csv"
}

// CSV renders one column per visible field in display order, one row per
// record. Select values render as their option label, falling back to the
// raw stored value when the option no longer exists. Every cell is quoted
// and embedded quotes are doubled.
func CSV(fields []schema.FieldDefinition, items []records.Record) string {
	visible := make([]schema.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if f.Visible {
			visible = append(visible, f)
		}
	}
	schema.SortFields(visible)

	var b strings.Builder
	b.WriteString(BOM)

	for i, f := range visible {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
	}
	b.WriteByte('\n')

	for r, item := range items {
		if r > 0 {
			b.WriteByte('\n')
		}
		for i, f := range visible {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(cellValue(f, item), `"`, `""`))
			b.WriteByte('"')
		}
	}
	return b.String()
}

func cellValue(field schema.FieldDefinition, item records.Record) string {
	value, ok := item.Fields[field.ID]
	if !ok || value == nil {
		return ""
	}
	raw := rules.Stringify(value)
	if field.Type == schema.TypeSelect {
		if option := schema.FindOption(field, raw); option != nil {
			return option.Label
		}
	}
	return raw
}
