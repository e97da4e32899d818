// Package document holds the opaque article records returned by the search
// API and extracts fields from them with jq expressions.
package document

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// HeadlinePath is the jq path of the headline used to detect duplicates.
const HeadlinePath = ".headline.main"

// Document is a single search result. Its bytes are passed through
// untouched; only extracted fields are ever inspected.
type Document json.RawMessage

// MarshalJSON returns the original bytes.
func (d Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores a copy of data.
func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return fmt.Errorf("document: UnmarshalJSON on nil pointer")
	}
	*d = append((*d)[0:0], data...)
	return nil
}

// Decode unmarshals the document into a generic value.
func (d Document) Decode() (any, error) {
	var v any
	if err := json.Unmarshal(d, &v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return v, nil
}

// Extractor evaluates a compiled jq expression against documents.
type Extractor struct {
	expr string
	code *gojq.Code
}

// NewExtractor parses and compiles a jq expression.
func NewExtractor(expr string) (*Extractor, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}

	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile jq expression %q: %w", expr, err)
	}

	return &Extractor{expr: expr, code: code}, nil
}

// MustExtractor is like NewExtractor but panics on an invalid expression.
func MustExtractor(expr string) *Extractor {
	e, err := NewExtractor(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// Expression returns the source expression.
func (e *Extractor) Expression() string { return e.expr }

// Values runs the expression and returns every non-null result.
func (e *Extractor) Values(d Document) ([]any, error) {
	input, err := d.Decode()
	if err != nil {
		return nil, err
	}

	var out []any
	iter := e.code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("evaluate %s: %w", e.expr, err)
		}
		if v == nil {
			continue
		}
		out = append(out, v)
	}

	return out, nil
}

// String returns the first result of the expression if it is a string.
func (e *Extractor) String(d Document) (string, bool) {
	values, err := e.Values(d)
	if err != nil || len(values) == 0 {
		return "", false
	}
	s, ok := values[0].(string)
	return s, ok
}

var headline = MustExtractor(HeadlinePath)

// Headline returns headline.main, or false when the document has none.
func Headline(d Document) (string, bool) {
	return headline.String(d)
}
