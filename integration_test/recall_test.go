package integration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annbind"
	"github.com/hupe1980/annbind/testutil"
)

func toResults(matches []annbind.Match) []testutil.SearchResult {
	out := make([]testutil.SearchResult, len(matches))
	for i, m := range matches {
		out[i] = testutil.SearchResult{Key: m.Key, Distance: m.Distance}
	}
	return out
}

func assertAscending(t *testing.T, matches []annbind.Match) {
	t.Helper()
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
}

func TestExactSearchIsExact(t *testing.T) {
	const (
		dim        = 64
		size       = 2000
		numQueries = 20
		k          = 10
	)

	rng := testutil.NewRNG(42)
	vectors := rng.UnitVectors(size, dim)
	queries := rng.UnitVectors(numQueries, dim)

	batches, err := annbind.ExactSearch(vectors, queries, k, 4, annbind.MetricL2sq)
	require.NoError(t, err)
	require.Len(t, batches, numQueries)

	for qi, res := range batches {
		require.Len(t, res, k)
		assertAscending(t, res)

		truth := testutil.BruteForceSearch(vectors, queries[qi], k)
		assert.Equal(t, truth[0].Key, res[0].Key, "query %d: true nearest must come first", qi)

		recall := testutil.ComputeRecall(truth, toResults(res))
		assert.Equal(t, 1.0, recall, "query %d: exact search must be exact", qi)
	}
}

func TestGraphRecall(t *testing.T) {
	const (
		dim        = 64
		size       = 1000
		numQueries = 50
		k          = 10
	)

	// Unit vectors make cosine and squared L2 rank identically, so one
	// brute-force ground truth serves both metrics.
	tests := []struct {
		name      string
		metric    annbind.Metric
		minRecall float64
	}{
		{name: "SquaredL2", metric: annbind.MetricL2sq, minRecall: 0.90},
		{name: "Cosine", metric: annbind.MetricCosine, minRecall: 0.90},
	}

	rng := testutil.NewRNG(42)
	vectors := rng.UnitVectors(size, dim)
	queries := rng.UnitVectors(numQueries, dim)

	truths := make([][]testutil.SearchResult, numQueries)
	for qi := range queries {
		truths[qi] = testutil.BruteForceSearch(vectors, queries[qi], k)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := annbind.NewIndex(annbind.IndexConfig{
				Dimensions:      dim,
				Metric:          tt.metric,
				Connectivity:    16,
				ExpansionAdd:    128,
				ExpansionSearch: 128,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })

			require.NoError(t, idx.Reserve(size))
			for i, vec := range vectors {
				require.NoError(t, idx.Add(uint64(i), vec))
			}

			var total float64
			for qi, query := range queries {
				res, err := idx.Search(query, k)
				require.NoError(t, err)
				require.NotEmpty(t, res)
				assertAscending(t, res)

				total += testutil.ComputeRecall(truths[qi], toResults(res))
			}

			avg := total / float64(numQueries)
			assert.GreaterOrEqual(t, avg, tt.minRecall, "average recall@%d", k)
		})
	}
}

func TestFilteredSearchRespectsPredicate(t *testing.T) {
	const (
		dim  = 32
		size = 500
		k    = 10
	)

	rng := testutil.NewRNG(7)
	vectors := rng.UnitVectors(size, dim)

	idx, err := annbind.NewIndex(annbind.IndexConfig{
		Dimensions:      dim,
		Metric:          annbind.MetricL2sq,
		ExpansionSearch: 128,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	for i, vec := range vectors {
		require.NoError(t, idx.Add(uint64(i), vec))
	}

	for qi := 0; qi < 10; qi++ {
		query := rng.UnitVector(dim)

		res, err := idx.FilteredSearch(query, k, func(key uint64) bool { return key%2 == 0 })
		require.NoError(t, err)
		require.NotEmpty(t, res)
		assert.LessOrEqual(t, len(res), k)
		assertAscending(t, res)

		for _, m := range res {
			assert.Zero(t, m.Key%2, "query %d returned filtered-out key %d", qi, m.Key)
		}
	}
}
