package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateField is returned when a filter map names the same field twice.
var ErrDuplicateField = errors.New("duplicate filter field")

// FilterField is one clause of a filter expression: a field name and the
// values it may take. Multiple values are alternatives (OR).
type FilterField struct {
	name   string
	values []string
}

// Field creates a filter clause. A single value is the common case; pass
// several to express alternatives for the same field.
func Field(name string, values ...string) FilterField {
	v := make([]string, len(values))
	copy(v, values)
	return FilterField{name: name, values: v}
}

// Name returns the field name.
func (f FilterField) Name() string { return f.name }

// Values returns a copy of the field values.
func (f FilterField) Values() []string {
	v := make([]string, len(f.values))
	copy(v, f.values)
	return v
}

// FilterMap is an ordered set of filter clauses. Clause order is preserved
// in the encoded expression.
type FilterMap struct {
	fields []FilterField
}

// NewFilterMap validates and creates a FilterMap.
func NewFilterMap(fields ...FilterField) (FilterMap, error) {
	seen := make(map[string]struct{}, len(fields))
	out := make([]FilterField, 0, len(fields))

	for _, f := range fields {
		if f.name == "" {
			return FilterMap{}, fmt.Errorf("filter field name is required")
		}
		if len(f.values) == 0 {
			return FilterMap{}, fmt.Errorf("filter field %q needs at least one value", f.name)
		}
		if _, ok := seen[f.name]; ok {
			return FilterMap{}, fmt.Errorf("%w: %q", ErrDuplicateField, f.name)
		}
		seen[f.name] = struct{}{}
		out = append(out, Field(f.name, f.values...))
	}

	return FilterMap{fields: out}, nil
}

// MustFilterMap is like NewFilterMap but panics on invalid input.
func MustFilterMap(fields ...FilterField) FilterMap {
	fm, err := NewFilterMap(fields...)
	if err != nil {
		panic(err)
	}
	return fm
}

// Fields returns the clauses in order.
func (m FilterMap) Fields() []FilterField {
	out := make([]FilterField, len(m.fields))
	copy(out, m.fields)
	return out
}

// Len returns the number of clauses.
func (m FilterMap) Len() int { return len(m.fields) }

// IsEmpty reports whether the map has no clauses.
func (m FilterMap) IsEmpty() bool { return len(m.fields) == 0 }

// EncodeFilter renders a FilterMap in the service's filter-query syntax:
//
//	source:("New York Times" "AP") AND type_of_material:("News")
//
// Values are quoted but not escaped; embedded quotes pass through as-is.
func EncodeFilter(m FilterMap) string {
	clauses := make([]string, 0, len(m.fields))

	for _, f := range m.fields {
		quoted := make([]string, len(f.values))
		for i, v := range f.values {
			quoted[i] = `"` + v + `"`
		}
		clauses = append(clauses, fmt.Sprintf("%s:(%s)", f.name, strings.Join(quoted, " ")))
	}

	return strings.Join(clauses, " AND ")
}

// ParseFilterArgs groups "field=value" arguments into a FilterMap. Repeated
// fields collect their values in argument order; fields keep the order in
// which they first appear.
func ParseFilterArgs(args []string) (FilterMap, error) {
	var order []string
	values := make(map[string][]string)

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return FilterMap{}, fmt.Errorf("invalid filter %q: expected field=value", arg)
		}
		if _, exists := values[name]; !exists {
			order = append(order, name)
		}
		values[name] = append(values[name], value)
	}

	fields := make([]FilterField, 0, len(order))
	for _, name := range order {
		fields = append(fields, Field(name, values[name]...))
	}

	return NewFilterMap(fields...)
}
