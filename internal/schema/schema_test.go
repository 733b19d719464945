package schema

import "testing"

func intp(v int) *int { return &v }

func TestClampInvariants(t *testing.T) {
	cases := []Layout{
		{X: -3, Y: 0, W: 6, H: 1},
		{X: 10, Y: 2, W: 6, H: 1},
		{X: 0, Y: -1, W: 0, H: 0},
		{X: 11, Y: 5, W: 12, H: 2},
		{X: 5, Y: 0, W: 20, H: 1},
	}
	for _, in := range cases {
		got := Clamp(in)
		if got.X < 0 || got.W < 1 || got.X+got.W > GridColumns || got.Y < 0 || got.H < 1 {
			t.Errorf("Clamp(%+v) = %+v violates grid invariants", in, got)
		}
		if again := Clamp(got); again != got {
			t.Errorf("Clamp not idempotent: %+v -> %+v", got, again)
		}
	}
}

func TestApplyDeltaSequences(t *testing.T) {
	l := Layout{X: 0, Y: 0, W: 6, H: 1}
	deltas := []LayoutDelta{
		{X: intp(8)},
		{W: intp(9)},
		{X: intp(-4)},
		{Y: intp(-2)},
		{W: intp(0)},
	}
	for _, d := range deltas {
		l = ApplyDelta(l, d)
		if l.X < 0 || l.W < 1 || l.X+l.W > GridColumns || l.Y < 0 || l.H < 1 {
			t.Fatalf("invariants broken after delta %+v: %+v", d, l)
		}
	}
	// Re-applying a delta after clamping must be stable.
	wide := LayoutDelta{W: intp(10)}
	once := ApplyDelta(l, wide)
	twice := ApplyDelta(once, wide)
	if once != twice {
		t.Fatalf("ApplyDelta not idempotent for repeated delta: %+v vs %+v", once, twice)
	}
}

func TestReorderSwapsNeighbors(t *testing.T) {
	fields := []FieldDefinition{
		{ID: "a", Order: 0},
		{ID: "b", Order: 1},
		{ID: "c", Order: 2},
	}

	if !Reorder(fields, "b", "up") {
		t.Fatalf("expected swap")
	}
	if fields[0].ID != "b" || fields[1].ID != "a" {
		t.Fatalf("unexpected order after move up: %v, %v", fields[0].ID, fields[1].ID)
	}
	for i, f := range fields {
		if f.Order != i {
			t.Errorf("order not renumbered: %s has %d", f.ID, f.Order)
		}
	}
}

func TestReorderBoundaryIsNoop(t *testing.T) {
	fields := []FieldDefinition{
		{ID: "a", Order: 0},
		{ID: "b", Order: 1},
	}
	if Reorder(fields, "a", "up") {
		t.Errorf("first field moving up must be a no-op")
	}
	if Reorder(fields, "b", "down") {
		t.Errorf("last field moving down must be a no-op")
	}
	if fields[0].ID != "a" || fields[1].ID != "b" {
		t.Errorf("boundary no-op must not reorder")
	}
}

func TestSortFieldsStable(t *testing.T) {
	fields := []FieldDefinition{
		{ID: "x", Order: 1},
		{ID: "y", Order: 1},
		{ID: "z", Order: 0},
	}
	SortFields(fields)
	if fields[0].ID != "z" || fields[1].ID != "x" || fields[2].ID != "y" {
		t.Fatalf("ties must keep original relative order, got %v %v %v", fields[0].ID, fields[1].ID, fields[2].ID)
	}
}

func TestBackfillLayouts(t *testing.T) {
	existing := Layout{X: 0, Y: 9, W: 12, H: 1}
	fields := []FieldDefinition{
		{ID: "a", Order: 0},
		{ID: "b", Order: 1, Layout: &existing},
		{ID: "c", Order: 2},
		{ID: "d", Order: 3},
	}

	changed := BackfillLayouts(fields)
	if len(changed) != 3 {
		t.Fatalf("expected 3 backfilled fields, got %d", len(changed))
	}
	if *fields[0].Layout != (Layout{X: 0, Y: 0, W: 6, H: 1}) {
		t.Errorf("field 0 layout = %+v", *fields[0].Layout)
	}
	if *fields[1].Layout != existing {
		t.Errorf("existing layout must be preserved")
	}
	if *fields[2].Layout != (Layout{X: 0, Y: 1, W: 6, H: 1}) {
		t.Errorf("field 2 layout = %+v", *fields[2].Layout)
	}
	if *fields[3].Layout != (Layout{X: 6, Y: 1, W: 6, H: 1}) {
		t.Errorf("field 3 layout = %+v", *fields[3].Layout)
	}
}

func TestNextRow(t *testing.T) {
	fields := []FieldDefinition{
		{ID: "a", Layout: &Layout{X: 0, Y: 0, W: 6, H: 2}},
		{ID: "b"},
	}
	if got := NextRow(fields); got != 2 {
		t.Fatalf("NextRow = %d, want 2", got)
	}
}

func TestValidateNew(t *testing.T) {
	if err := ValidateNew("", TypeText); err == nil {
		t.Errorf("empty name must fail")
	}
	if err := ValidateNew("Phone", FieldType("phone")); err == nil {
		t.Errorf("unknown type must fail")
	}
	if err := ValidateNew("Phone", TypeText); err != nil {
		t.Errorf("valid input failed: %v", err)
	}
}
