// Package schema models the per-organization dynamic field definitions that
// drive the customer table and record editor.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

type FieldType string

const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeSelect   FieldType = "select"
	TypeDate     FieldType = "date"
	TypeCurrency FieldType = "currency"
	TypeEmail    FieldType = "email"
)

const (
	GridColumns        = 12
	DefaultColumnWidth = 200
)

var ErrSystemField = errors.New("system fields cannot be deleted")

// ValidType reports whether t is one of the supported field types.
func ValidType(t FieldType) bool {
	switch t {
	case TypeText, TypeNumber, TypeSelect, TypeDate, TypeCurrency, TypeEmail:
		return true
	default:
		return false
	}
}

// SelectOption is one choice of a select field. Option ids are the only
// valid stored values for that field.
type SelectOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Layout places a field on the 12-column editor grid.
type Layout struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// LayoutDelta is a partial layout change; nil members are left untouched.
type LayoutDelta struct {
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`
	W *int `json:"w,omitempty"`
	H *int `json:"h,omitempty"`
}

type FieldDefinition struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     FieldType      `json:"type"`
	Visible  bool           `json:"visible"`
	Order    int            `json:"order"`
	IsSystem bool           `json:"isSystem"`
	Width    int            `json:"width"`
	Layout   *Layout        `json:"layout,omitempty"`
	Options  []SelectOption `json:"options,omitempty"`
}

// SortFields orders fields by Order ascending. The sort is stable so that
// accidental ties keep their original relative order.
func SortFields(fields []FieldDefinition) {
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Order < fields[j].Order
	})
}

// Reorder swaps the field's Order with its neighbor in the current sorted
// sequence. A swap past either boundary is a no-op. Returns true when a swap
// happened.
func Reorder(fields []FieldDefinition, fieldID, direction string) bool {
	SortFields(fields)
	index := -1
	for i := range fields {
		if fields[i].ID == fieldID {
			index = i
			break
		}
	}
	if index < 0 {
		return false
	}

	target := index
	switch direction {
	case "up":
		target = index - 1
	case "down":
		target = index + 1
	}
	if target == index || target < 0 || target >= len(fields) {
		return false
	}

	fields[index], fields[target] = fields[target], fields[index]
	for i := range fields {
		fields[i].Order = i
	}
	return true
}

// Clamp forces a layout back inside the grid: x>=0, w>=1, x+w<=12 (shrinking
// x when needed), y>=0, h>=1. Clamping is idempotent.
func Clamp(l Layout) Layout {
	if l.X < 0 {
		l.X = 0
	}
	if l.W < 1 {
		l.W = 1
	}
	if l.W > GridColumns {
		l.W = GridColumns
	}
	if l.X+l.W > GridColumns {
		l.X = GridColumns - l.W
	}
	if l.Y < 0 {
		l.Y = 0
	}
	if l.H < 1 {
		l.H = 1
	}
	return l
}

// ApplyDelta merges a partial change into a layout and clamps the result.
func ApplyDelta(l Layout, delta LayoutDelta) Layout {
	if delta.X != nil {
		l.X = *delta.X
	}
	if delta.Y != nil {
		l.Y = *delta.Y
	}
	if delta.W != nil {
		l.W = *delta.W
	}
	if delta.H != nil {
		l.H = *delta.H
	}
	return Clamp(l)
}

// DefaultLayout is the deterministic backfill position for the i-th field:
// two columns of half-width rows.
func DefaultLayout(index int) Layout {
	return Layout{X: (index % 2) * 6, Y: index / 2, W: 6, H: 1}
}

// BackfillLayouts assigns a default layout to every field missing one,
// using the field's position in the sorted sequence. Returns the fields
// whose layout was filled in.
func BackfillLayouts(fields []FieldDefinition) []FieldDefinition {
	SortFields(fields)
	var changed []FieldDefinition
	for i := range fields {
		if fields[i].Layout != nil {
			continue
		}
		layout := DefaultLayout(i)
		fields[i].Layout = &layout
		changed = append(changed, fields[i])
	}
	return changed
}

// NextRow returns the first free grid row below every laid-out field, used
// when appending a new field to the editor.
func NextRow(fields []FieldDefinition) int {
	maxRow := 0
	for _, f := range fields {
		if f.Layout == nil {
			continue
		}
		if bottom := f.Layout.Y + f.Layout.H; bottom > maxRow {
			maxRow = bottom
		}
	}
	return maxRow
}

// FindOption returns the option with the given id, or nil.
func FindOption(field FieldDefinition, optionID string) *SelectOption {
	for i := range field.Options {
		if field.Options[i].ID == optionID {
			return &field.Options[i]
		}
	}
	return nil
}

// ValidateNew checks the invariants of a field about to be created.
func ValidateNew(name string, fieldType FieldType) error {
	if name == "" {
		return fmt.Errorf("field name is required")
	}
	if !ValidType(fieldType) {
		return fmt.Errorf("unknown field type %q", fieldType)
	}
	return nil
}
