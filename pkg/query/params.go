// Package query builds the query string sent to the article search API,
// including the nested filter-query (fq) expression.
package query

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Recognized parameter names.
const (
	ParamQuery       = "q"
	ParamFilter      = "fq"
	ParamBeginDate   = "begin_date"
	ParamEndDate     = "end_date"
	ParamSort        = "sort"
	ParamFields      = "fl"
	ParamFacet       = "facet"
	ParamFacetFields = "facet_fields"
	ParamFacetFilter = "facet_filter"
	ParamPage        = "page"
)

// Kind identifies which member of the Value union is set.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFilter
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFilter:
		return "filter"
	default:
		return "unknown"
	}
}

var recognized = map[string]Kind{
	ParamQuery:       KindString,
	ParamFilter:      KindFilter,
	ParamBeginDate:   KindString,
	ParamEndDate:     KindString,
	ParamSort:        KindString,
	ParamFields:      KindString,
	ParamFacet:       KindBool,
	ParamFacetFields: KindString,
	ParamFacetFilter: KindBool,
	ParamPage:        KindInt,
}

var (
	// ErrUnknownParam is returned for parameter names the API does not accept.
	ErrUnknownParam = errors.New("unknown search parameter")

	// ErrDuplicateParam is returned when a parameter is set twice.
	ErrDuplicateParam = errors.New("duplicate search parameter")

	// ErrKindMismatch is returned when a parameter receives a value of the wrong kind.
	ErrKindMismatch = errors.New("parameter value has wrong kind")
)

// Value is a tagged union of the value kinds a parameter may carry.
type Value struct {
	kind   Kind
	str    string
	flag   bool
	num    int
	filter FilterMap
}

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Int creates an integer value.
func Int(n int) Value { return Value{kind: KindInt, num: n} }

// Filter creates a filter-map value.
func Filter(m FilterMap) Value { return Value{kind: KindFilter, filter: m} }

// Kind returns the union tag.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer member.
func (v Value) Int() int { return v.num }

// FilterMap returns the filter member.
func (v Value) FilterMap() FilterMap { return v.filter }

// Literal returns the value as it appears in the query string.
func (v Value) Literal() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindInt:
		return strconv.Itoa(v.num)
	case KindFilter:
		return EncodeFilter(v.filter)
	default:
		return ""
	}
}

// Param is a single named search parameter.
type Param struct {
	Name  string
	Value Value
}

// Params is an ordered, validated set of search parameters. The zero value
// is an empty parameter set.
type Params struct {
	params []Param
}

// NewParams validates and creates a parameter set. Parameters keep the order
// given here when encoded.
func NewParams(params ...Param) (Params, error) {
	var p Params
	for _, param := range params {
		next, err := p.With(param.Name, param.Value)
		if err != nil {
			return Params{}, err
		}
		p = next
	}
	return p, nil
}

// MustParams is like NewParams but panics on invalid input.
func MustParams(params ...Param) Params {
	p, err := NewParams(params...)
	if err != nil {
		panic(err)
	}
	return p
}

// With returns a copy of p with the parameter appended.
func (p Params) With(name string, v Value) (Params, error) {
	want, ok := recognized[name]
	if !ok {
		return Params{}, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	if v.kind != want {
		return Params{}, fmt.Errorf("%w: %s must be %s, got %s", ErrKindMismatch, name, want, v.kind)
	}
	if name == ParamPage && v.num < 0 {
		return Params{}, fmt.Errorf("page must be >= 0 (got %d)", v.num)
	}
	if p.Has(name) {
		return Params{}, fmt.Errorf("%w: %q", ErrDuplicateParam, name)
	}

	out := make([]Param, len(p.params), len(p.params)+1)
	copy(out, p.params)
	out = append(out, Param{Name: name, Value: v})
	return Params{params: out}, nil
}

// WithPage returns a copy of p whose page parameter is set to page,
// replacing any existing page selector in place.
func (p Params) WithPage(page int) Params {
	out := make([]Param, 0, len(p.params)+1)
	replaced := false
	for _, param := range p.params {
		if param.Name == ParamPage {
			param.Value = Int(page)
			replaced = true
		}
		out = append(out, param)
	}
	if !replaced {
		out = append(out, Param{Name: ParamPage, Value: Int(page)})
	}
	return Params{params: out}
}

// Has reports whether the named parameter is set.
func (p Params) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Get returns the named parameter value.
func (p Params) Get(name string) (Value, bool) {
	for _, param := range p.params {
		if param.Name == name {
			return param.Value, true
		}
	}
	return Value{}, false
}

// Len returns the number of parameters.
func (p Params) Len() int { return len(p.params) }

// All returns the parameters in encoding order.
func (p Params) All() []Param {
	out := make([]Param, len(p.params))
	copy(out, p.params)
	return out
}

var boolCase = strings.NewReplacer("True", "true", "False", "false")

// Encode renders p as key=value pairs joined by '&'. Values are not URL
// escaped. Any literal "True"/"False" in the assembled string is lowercased,
// including inside free-text values.
func Encode(p Params) string {
	pairs := make([]string, 0, len(p.params))
	for _, param := range p.params {
		pairs = append(pairs, param.Name+"="+param.Value.Literal())
	}
	return boolCase.Replace(strings.Join(pairs, "&"))
}

// FromValues converts HTTP-style query values into Params. Filter clauses are
// read from repeated "fq" entries of the form field=value (or field:value).
// Keys are taken in sorted order since url.Values is unordered.
func FromValues(values url.Values) (Params, error) {
	var p Params

	for _, name := range slices.Sorted(maps.Keys(values)) {
		raw := values[name]
		if len(raw) == 0 {
			continue
		}
		kind, ok := recognized[name]
		if !ok {
			return Params{}, fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		if kind != KindFilter && len(raw) > 1 {
			return Params{}, fmt.Errorf("%w: %q", ErrDuplicateParam, name)
		}

		var (
			v   Value
			err error
		)
		switch kind {
		case KindString:
			v = String(raw[0])
		case KindBool:
			var b bool
			b, err = strconv.ParseBool(raw[0])
			v = Bool(b)
		case KindInt:
			var n int
			n, err = strconv.Atoi(raw[0])
			v = Int(n)
		case KindFilter:
			args := make([]string, len(raw))
			for i, r := range raw {
				if !strings.Contains(r, "=") {
					r = strings.Replace(r, ":", "=", 1)
				}
				args[i] = r
			}
			var fm FilterMap
			fm, err = ParseFilterArgs(args)
			v = Filter(fm)
		}
		if err != nil {
			return Params{}, fmt.Errorf("parse %s: %w", name, err)
		}

		if p, err = p.With(name, v); err != nil {
			return Params{}, err
		}
	}

	return p, nil
}
