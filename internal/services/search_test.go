package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSearchType(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{`"exact phrase" lookup`, SearchTypeFulltext},
		{`rust AND wasm`, SearchTypeFulltext},
		{`climate -denial`, SearchTypeFulltext},
		{`bitcoin`, SearchTypeFulltext},
		{`golang generics`, SearchTypeFulltext},
		{`latest advances in renewable energy storage`, SearchTypeSemantic},
		{`articles about climate policy`, SearchTypeSemantic},
		{`papers similar to transformer architectures`, SearchTypeSemantic},
		{`quantum computing basics`, SearchTypeHybrid},
		{`european central bank rate decision`, SearchTypeHybrid},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, selectSearchType(tc.query), "query %q", tc.query)
	}
}

func TestSelectSearchType_LowercaseOperatorsAreNotOperators(t *testing.T) {
	// "and" as a plain word should not force the lexical branch.
	assert.Equal(t, SearchTypeHybrid, selectSearchType("cats and dogs"))
}

func TestPaginate(t *testing.T) {
	hits := make([]SearchHit, 5)
	for i := range hits {
		hits[i] = SearchHit{ContentID: uuid.New(), Score: float64(5 - i)}
	}

	page := paginate(hits, 0, 2)
	require.Len(t, page, 2)
	assert.Equal(t, hits[0].ContentID, page[0].ContentID)

	page = paginate(hits, 4, 10)
	require.Len(t, page, 1)
	assert.Equal(t, hits[4].ContentID, page[0].ContentID)

	assert.Empty(t, paginate(hits, 5, 2), "offset past the end yields an empty page")
	assert.Empty(t, paginate(hits, 100, 2))
}

func TestSearchConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultSearchConfig().Validate())

	bad := DefaultSearchConfig()
	bad.SemanticWeight = 0.9
	assert.Error(t, bad.Validate())

	negative := DefaultSearchConfig()
	negative.RecencyWeight = -0.2
	negative.SemanticWeight = 0.9
	assert.Error(t, negative.Validate())

	noHalfLife := DefaultSearchConfig()
	noHalfLife.RecencyHalfLifeDays = 0
	assert.Error(t, noHalfLife.Validate())

	noOverFetch := DefaultSearchConfig()
	noOverFetch.OverFetch = 0
	assert.Error(t, noOverFetch.Validate())
}

func TestDefaultSearchConfig_WeightsSumToOne(t *testing.T) {
	cfg := DefaultSearchConfig()
	assert.InDelta(t, 1.0, cfg.SemanticWeight+cfg.LexicalWeight+cfg.RecencyWeight, 1e-9)
}
