package records

import (
	"testing"

	"github.com/j-keen/flexicrm/internal/schema"
)

func testFields() []schema.FieldDefinition {
	return []schema.FieldDefinition{
		{ID: "f_name", Name: "Name", Type: schema.TypeText, Visible: true, Order: 0},
		{ID: "f_amount", Name: "Amount", Type: schema.TypeNumber, Visible: true, Order: 1},
		{ID: "f_secret", Name: "Internal Note", Type: schema.TypeText, Visible: false, Order: 2},
	}
}

func testRecords() []Record {
	return []Record{
		{ID: "r1", Fields: map[string]any{"f_name": "Kim Minji", "f_amount": float64(300)}},
		{ID: "r2", Fields: map[string]any{"f_name": "Lee Junho", "f_amount": float64(100), "f_secret": "minji referral"}},
		{ID: "r3", Fields: map[string]any{"f_name": "Park Soyeon"}},
	}
}

func TestGlobalSearchVisibleFieldsOnly(t *testing.T) {
	got := View(testRecords(), testFields(), Query{Search: "MINJI"})
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("hidden-field match must not include the record, got %v", ids(got))
	}
}

func TestGlobalSearchCaseInsensitive(t *testing.T) {
	got := View(testRecords(), testFields(), Query{Search: "lee jun"})
	if len(got) != 1 || got[0].ID != "r2" {
		t.Fatalf("expected r2, got %v", ids(got))
	}
}

func TestColumnFilters(t *testing.T) {
	cases := []struct {
		op   FilterOperator
		val  string
		want []string
	}{
		{OpContains, "so", []string{"r3"}},
		{OpEquals, "kim minji", []string{"r1"}},
		{OpStartsWith, "lee", []string{"r2"}},
		{OpEndsWith, "MINJI", []string{"r1"}},
	}
	for _, tc := range cases {
		got := View(testRecords(), testFields(), Query{
			Filters: []ColumnFilter{{FieldID: "f_name", Operator: tc.op, Value: tc.val}},
		})
		if !equalIDs(got, tc.want) {
			t.Errorf("%s %q: got %v, want %v", tc.op, tc.val, ids(got), tc.want)
		}
	}
}

func TestFilterOnMissingValueExcludes(t *testing.T) {
	got := View(testRecords(), testFields(), Query{
		Filters: []ColumnFilter{{FieldID: "f_amount", Operator: OpContains, Value: "0"}},
	})
	if !equalIDs(got, []string{"r1", "r2"}) {
		t.Fatalf("record without the column must be excluded, got %v", ids(got))
	}
}

func TestSortNumeric(t *testing.T) {
	got := View(testRecords(), testFields(), Query{Sort: &SortSpec{FieldID: "f_amount", Direction: SortAsc}})
	if !equalIDs(got, []string{"r2", "r1", "r3"}) {
		t.Fatalf("ascending numeric sort with nulls last, got %v", ids(got))
	}
}

func TestSortNullsLastBothDirections(t *testing.T) {
	asc := View(testRecords(), testFields(), Query{Sort: &SortSpec{FieldID: "f_amount", Direction: SortAsc}})
	desc := View(testRecords(), testFields(), Query{Sort: &SortSpec{FieldID: "f_amount", Direction: SortDesc}})
	if asc[len(asc)-1].ID != "r3" || desc[len(desc)-1].ID != "r3" {
		t.Fatalf("nulls must sort last regardless of direction: asc %v desc %v", ids(asc), ids(desc))
	}
	if !equalIDs(desc[:2], []string{"r1", "r2"}) {
		t.Fatalf("descending numeric sort, got %v", ids(desc))
	}
}

func TestSortStrings(t *testing.T) {
	got := View(testRecords(), testFields(), Query{Sort: &SortSpec{FieldID: "f_name", Direction: SortAsc}})
	if !equalIDs(got, []string{"r1", "r2", "r3"}) {
		t.Fatalf("string sort, got %v", ids(got))
	}
}

func TestSortMixedTypesFallsBackToString(t *testing.T) {
	items := []Record{
		{ID: "a", Fields: map[string]any{"f_amount": "20"}},
		{ID: "b", Fields: map[string]any{"f_amount": float64(100)}},
	}
	got := View(items, testFields(), Query{Sort: &SortSpec{FieldID: "f_amount", Direction: SortAsc}})
	// "100" < "20" lexicographically once either side is a string.
	if !equalIDs(got, []string{"b", "a"}) {
		t.Fatalf("mixed-type sort must compare as strings, got %v", ids(got))
	}
}

func TestViewDoesNotMutateInput(t *testing.T) {
	items := testRecords()
	_ = View(items, testFields(), Query{Sort: &SortSpec{FieldID: "f_amount", Direction: SortDesc}})
	if items[0].ID != "r1" || items[1].ID != "r2" || items[2].ID != "r3" {
		t.Fatalf("input slice reordered: %v", ids(items))
	}
}

func ids(items []Record) []string {
	out := make([]string, len(items))
	for i, r := range items {
		out[i] = r.ID
	}
	return out
}

func equalIDs(items []Record, want []string) bool {
	if len(items) != len(want) {
		return false
	}
	for i, r := range items {
		if r.ID != want[i] {
			return false
		}
	}
	return true
}
