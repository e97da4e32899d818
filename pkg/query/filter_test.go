package query

import (
	"errors"
	"testing"
)

func TestEncodeFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   FilterMap
		expected string
	}{
		{
			name:     "empty",
			filter:   FilterMap{},
			expected: "",
		},
		{
			name:     "single value has no trailing space",
			filter:   MustFilterMap(Field("type_of_material", "News")),
			expected: `type_of_material:("News")`,
		},
		{
			name: "multiple values and fields",
			filter: MustFilterMap(
				Field("source", "New York Times", "AP"),
				Field("type_of_material", "News"),
			),
			expected: `source:("New York Times" "AP") AND type_of_material:("News")`,
		},
		{
			name: "field order is preserved",
			filter: MustFilterMap(
				Field("z_field", "1"),
				Field("a_field", "2"),
			),
			expected: `z_field:("1") AND a_field:("2")`,
		},
		{
			name:     "embedded quotes pass through",
			filter:   MustFilterMap(Field("headline", `say "hi"`)),
			expected: `headline:("say "hi"")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeFilter(tt.filter)
			if got != tt.expected {
				t.Errorf("EncodeFilter() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNewFilterMap_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fields []FilterField
		dup    bool
	}{
		{name: "empty name", fields: []FilterField{Field("", "x")}},
		{name: "no values", fields: []FilterField{Field("source")}},
		{name: "duplicate field", fields: []FilterField{Field("source", "a"), Field("source", "b")}, dup: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilterMap(tt.fields...)
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			if tt.dup && !errors.Is(err, ErrDuplicateField) {
				t.Errorf("Expected ErrDuplicateField, got %v", err)
			}
		})
	}
}

func TestFilterMap_CopiesInput(t *testing.T) {
	values := []string{"AP"}
	fm := MustFilterMap(Field("source", values...))
	values[0] = "Reuters"

	if got := EncodeFilter(fm); got != `source:("AP")` {
		t.Errorf("EncodeFilter() = %q after mutating input", got)
	}

	fields := fm.Fields()
	fields[0] = Field("other", "x")
	if fm.Fields()[0].Name() != "source" {
		t.Error("Fields() should return a copy")
	}
}

func TestParseFilterArgs(t *testing.T) {
	fm, err := ParseFilterArgs([]string{
		"source=New York Times",
		"type_of_material=News",
		"source=AP",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := `source:("New York Times" "AP") AND type_of_material:("News")`
	if got := EncodeFilter(fm); got != want {
		t.Errorf("EncodeFilter() = %q, want %q", got, want)
	}

	if _, err := ParseFilterArgs([]string{"no-separator"}); err == nil {
		t.Error("Expected error for argument without '='")
	}
	if _, err := ParseFilterArgs([]string{"=value"}); err == nil {
		t.Error("Expected error for empty field name")
	}
}
