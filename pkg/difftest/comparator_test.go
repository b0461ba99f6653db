package difftest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

func searchResult(service string, ids ...string) DatabaseResult {
	hits := make([]vdb.SearchHit, len(ids))
	for i, id := range ids {
		hits[i] = vdb.SearchHit{ID: id, Score: float32(i)}
	}
	return DatabaseResult{
		Service: service,
		Success: true,
		Data:    &Outcome{Searches: [][]vdb.SearchHit{hits}},
	}
}

func TestCompareSuccessDivergenceDominates(t *testing.T) {
	c := NewComparator(0.5)
	tc := TestCase{ID: 1, Op: OpInsert}

	results := []DatabaseResult{
		{Service: "milvus", Success: true, Data: &Outcome{InsertedIDs: []string{"a"}}},
		{Service: "qdrant", Success: false, Error: &ResultError{Kind: vdb.KindService, Message: "qdrant: insert: service (status 400): bad id"}},
		{Service: "chroma", Success: true, Data: &Outcome{InsertedIDs: []string{"a", "b"}}},
	}

	incs := c.Compare(tc, results, nil)
	require.Len(t, incs, 1)
	assert.Equal(t, KindSuccessDivergence, incs[0].Kind)
	assert.Equal(t, SeverityErrorDivergent, incs[0].Severity)
	assert.ElementsMatch(t, []string{"milvus", "qdrant", "chroma"}, incs[0].Services)
	// Content comparison is suppressed: the insert-count mismatch between
	// milvus and chroma must not surface as a second finding.
}

func TestCompareSearchOverlap(t *testing.T) {
	tc := TestCase{ID: 2, Op: OpSearch}

	t.Run("full overlap is consistent", func(t *testing.T) {
		c := NewComparator(0.5)
		incs := c.Compare(tc, []DatabaseResult{
			searchResult("milvus", "a", "b", "c"),
			searchResult("qdrant", "c", "b", "a"),
		}, nil)
		assert.Empty(t, incs)
	})

	t.Run("disjoint sets diverge", func(t *testing.T) {
		c := NewComparator(0.5)
		incs := c.Compare(tc, []DatabaseResult{
			searchResult("milvus", "a", "b"),
			searchResult("qdrant", "x", "y"),
		}, nil)
		require.Len(t, incs, 1)
		assert.Equal(t, KindResultDivergence, incs[0].Kind)
		assert.Equal(t, SeverityDivergent, incs[0].Severity)
	})

	t.Run("both empty agree", func(t *testing.T) {
		c := NewComparator(0.5)
		incs := c.Compare(tc, []DatabaseResult{
			searchResult("milvus"),
			searchResult("qdrant"),
		}, nil)
		assert.Empty(t, incs)
	})

	t.Run("threshold is configurable", func(t *testing.T) {
		// Overlap 2/4 = 0.5 passes a 0.5 threshold but fails 0.9.
		lenient := NewComparator(0.5)
		strictComp := NewComparator(0.9)
		results := []DatabaseResult{
			searchResult("milvus", "a", "b", "c"),
			searchResult("qdrant", "b", "c", "d"),
		}
		assert.Empty(t, lenient.Compare(tc, results, nil))
		assert.Len(t, strictComp.Compare(tc, results, nil), 1)
	})
}

func TestCompareDeleteCounts(t *testing.T) {
	c := NewComparator(0.5)
	tc := TestCase{ID: 3, Op: OpDelete}

	two, three := 2, 3
	incs := c.Compare(tc, []DatabaseResult{
		{Service: "qdrant", Success: true, Data: &Outcome{Removed: &two}},
		{Service: "weaviate", Success: true, Data: &Outcome{Removed: &three}},
	}, nil)
	require.Len(t, incs, 1)
	assert.Contains(t, incs[0].Description, "delete count mismatch")
}

func TestCompareMixedTraces(t *testing.T) {
	c := NewComparator(0.5)
	tc := TestCase{ID: 4, Op: OpMixed}

	full := &Outcome{Sub: []SubOutcome{
		{Op: OpInsert, Success: true},
		{Op: OpSearch, Success: true},
		{Op: OpDelete, Success: true},
	}}
	short := &Outcome{Sub: []SubOutcome{
		{Op: OpInsert, Success: true},
		{Op: OpSearch, Success: false, Error: "rejected"},
	}}

	incs := c.Compare(tc, []DatabaseResult{
		{Service: "milvus", Success: true, Data: full},
		{Service: "chroma", Success: true, Data: short},
	}, nil)
	require.Len(t, incs, 1)
	assert.Contains(t, incs[0].Description, "sub-operations")
}

func TestCompareSingleExclusionIsInformational(t *testing.T) {
	c := NewComparator(0.5)
	tc := TestCase{ID: 5, Op: OpSearch}

	incs := c.Compare(tc, []DatabaseResult{
		searchResult("milvus", "a"),
		searchResult("qdrant", "a"),
	}, []string{"weaviate"})
	require.Len(t, incs, 1)
	assert.Equal(t, KindServiceExcluded, incs[0].Kind)
	assert.Equal(t, SeverityInformational, incs[0].Severity)

	result := TestResult{Case: tc, Inconsistencies: incs}
	assert.True(t, result.Consistent())
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(nil, nil))
	assert.Equal(t, 0.0, jaccard([]string{"a"}, []string{"b"}))
	assert.InDelta(t, 1.0/3.0, jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
}
