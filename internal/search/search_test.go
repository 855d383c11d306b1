package search

import (
	"reflect"
	"testing"
)

func TestParsePgTextArray(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty array", raw: "{}", want: nil},
		{name: "single element", raw: "{a@example.com}", want: []string{"a@example.com"}},
		{name: "multiple elements", raw: "{a@example.com,b@example.com}", want: []string{"a@example.com", "b@example.com"}},
		{name: "null element skipped", raw: "{a@example.com,NULL}", want: []string{"a@example.com"}},
		{name: "malformed input", raw: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePgTextArray(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePgTextArray(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFirstNonBlank(t *testing.T) {
	if got := firstNonBlank("", "  ", "hit"); got != "hit" {
		t.Errorf("firstNonBlank = %q, want %q", got, "hit")
	}
	if got := firstNonBlank("", "   "); got != "" {
		t.Errorf("firstNonBlank = %q, want empty", got)
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Errorf("nonNil(nil) = %v, want empty slice", got)
	}
	in := []Result{{ID: "doc-1"}}
	if got := nonNil(in); len(got) != 1 {
		t.Errorf("nonNil should pass through non-nil slices")
	}
}
