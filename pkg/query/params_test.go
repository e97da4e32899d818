package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_OrderAndFilter(t *testing.T) {
	p := MustParams(
		Param{Name: ParamQuery, Value: String("election")},
		Param{Name: ParamFilter, Value: Filter(MustFilterMap(
			Field("source", "New York Times", "AP"),
			Field("type_of_material", "News"),
		))},
		Param{Name: ParamSort, Value: String("newest")},
	)

	got := Encode(p)
	assert.Equal(t,
		`q=election&fq=source:("New York Times" "AP") AND type_of_material:("News")&sort=newest`,
		got)
}

func TestEncode_BooleansLowercase(t *testing.T) {
	p := MustParams(
		Param{Name: ParamFacet, Value: Bool(true)},
		Param{Name: ParamFacetFilter, Value: Bool(false)},
	)

	got := Encode(p)
	assert.Equal(t, "facet=true&facet_filter=false", got)
	assert.NotContains(t, got, "True")
}

func TestEncode_NormalizesFreeText(t *testing.T) {
	p := MustParams(Param{Name: ParamQuery, Value: String("True Detective False Start")})

	assert.Equal(t, "q=true Detective false Start", Encode(p))
}

func TestEncode_Idempotent(t *testing.T) {
	p := MustParams(
		Param{Name: ParamQuery, Value: String("storm")},
		Param{Name: ParamFilter, Value: Filter(MustFilterMap(Field("section_name", "U.S.", "World")))},
		Param{Name: ParamPage, Value: Int(3)},
	)

	assert.Equal(t, Encode(p), Encode(p))
}

func TestEncode_Empty(t *testing.T) {
	assert.Equal(t, "", Encode(Params{}))
}

func TestNewParams_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params []Param
		target error
	}{
		{
			name:   "unknown key",
			params: []Param{{Name: "api_key", Value: String("x")}},
			target: ErrUnknownParam,
		},
		{
			name: "duplicate key",
			params: []Param{
				{Name: ParamQuery, Value: String("a")},
				{Name: ParamQuery, Value: String("b")},
			},
			target: ErrDuplicateParam,
		},
		{
			name:   "filter on scalar param",
			params: []Param{{Name: ParamQuery, Value: Filter(FilterMap{})}},
			target: ErrKindMismatch,
		},
		{
			name:   "scalar on fq",
			params: []Param{{Name: ParamFilter, Value: String(`source:("AP")`)}},
			target: ErrKindMismatch,
		},
		{
			name:   "page must be int",
			params: []Param{{Name: ParamPage, Value: String("2")}},
			target: ErrKindMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParams(tt.params...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	_, err := NewParams(Param{Name: ParamPage, Value: Int(-1)})
	assert.Error(t, err, "negative page should be rejected")
}

func TestParams_WithPage(t *testing.T) {
	base := MustParams(Param{Name: ParamQuery, Value: String("storm")})

	paged := base.WithPage(2)
	assert.Equal(t, "q=storm&page=2", Encode(paged))
	assert.False(t, base.Has(ParamPage), "WithPage must not modify the receiver")

	repaged := paged.WithPage(5)
	assert.Equal(t, "q=storm&page=5", Encode(repaged))
	assert.Equal(t, 2, repaged.Len())
}

func TestParams_Get(t *testing.T) {
	p := MustParams(Param{Name: ParamPage, Value: Int(4)})

	v, ok := p.Get(ParamPage)
	require.True(t, ok)
	assert.Equal(t, KindInt, v.Kind())
	assert.Equal(t, 4, v.Int())

	_, ok = p.Get(ParamQuery)
	assert.False(t, ok)
}

func TestFromValues(t *testing.T) {
	values := url.Values{
		"q":     {"storm"},
		"fq":    {"source:New York Times", "source=AP"},
		"facet": {"true"},
		"page":  {"1"},
	}

	p, err := FromValues(values)
	require.NoError(t, err)
	assert.Equal(t,
		`facet=true&fq=source:("New York Times" "AP")&page=1&q=storm`,
		Encode(p))
}

func TestFromValues_Errors(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		target error
	}{
		{name: "unknown", values: url.Values{"foo": {"bar"}}, target: ErrUnknownParam},
		{name: "repeated scalar", values: url.Values{"q": {"a", "b"}}, target: ErrDuplicateParam},
		{name: "bad bool", values: url.Values{"facet": {"maybe"}}},
		{name: "bad int", values: url.Values{"page": {"two"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromValues(tt.values)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
