package search

import (
	"encoding/json"
	"testing"
	"unicode/utf8"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestDecodeStringReadsHitValues(t *testing.T) {
	hit := meili.Hit{
		"id":   json.RawMessage(`"cus-1"`),
		"text": json.RawMessage(`"Dana 555-1234"`),
	}
	if got := decodeString(hit, "id"); got != "cus-1" {
		t.Errorf("expected cus-1, got %q", got)
	}
	if got := decodeString(hit, "text"); got != "Dana 555-1234" {
		t.Errorf("expected document text, got %q", got)
	}
	if got := decodeString(hit, "missing"); got != "" {
		t.Errorf("expected empty string for missing key, got %q", got)
	}
	if got := decodeString(meili.Hit{"id": json.RawMessage(`42`)}, "id"); got != "" {
		t.Errorf("expected empty string for non-string value, got %q", got)
	}
}

func TestPreviewKeepsShortText(t *testing.T) {
	if got := preview("hello"); got != "hello" {
		t.Errorf("short text must pass through, got %q", got)
	}
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	var long string
	for len(long) < 200 {
		long += "héllo wörld "
	}
	got := preview(long)
	if len(got) > 120 {
		t.Errorf("preview too long: %d bytes", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("preview is not valid UTF-8: %q", got)
	}
}
