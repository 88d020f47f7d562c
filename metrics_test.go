package annbind_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annbind"
)

var (
	_ annbind.MetricsCollector = annbind.NoopMetricsCollector{}
	_ annbind.MetricsCollector = (*annbind.BasicMetricsCollector)(nil)
)

func TestMetricsRecordedByOperations(t *testing.T) {
	metrics := &annbind.BasicMetricsCollector{}
	idx, err := annbind.NewIndex(annbind.DefaultConfig(4), annbind.WithMetricsCollector(metrics))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(1, []float32{1, 0, 0, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1, 0, 0}))
	require.NoError(t, idx.Add(3, []float32{0, 0, 1, 0}))
	require.Error(t, idx.Add(4, []float32{1}))

	_, err = idx.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	_, err = idx.Search([]float32{1}, 2)
	require.Error(t, err)

	_, err = idx.Remove(1)
	require.NoError(t, err)

	_, err = idx.ToBytes()
	require.NoError(t, err)
	require.Error(t, idx.SaveToFile(""))

	stats := metrics.GetStats()
	assert.Equal(t, int64(4), stats.AddCount)
	assert.Equal(t, int64(1), stats.AddErrors)
	assert.Equal(t, int64(2), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
	assert.Equal(t, int64(1), stats.RemoveCount)
	assert.Equal(t, int64(0), stats.RemoveErrors)
	assert.Equal(t, int64(2), stats.PersistCount)
	assert.Equal(t, int64(1), stats.PersistErrors)
	assert.GreaterOrEqual(t, stats.AddAvgNanos, int64(0))
	assert.GreaterOrEqual(t, stats.SearchAvgNanos, int64(0))
}

func TestMetricsRecordedByExactSearch(t *testing.T) {
	metrics := &annbind.BasicMetricsCollector{}
	dataset := [][]float32{{0, 1}, {1, 0}}
	queries := [][]float32{{0, 1}, {1, 0}, {0.5, 0.5}}

	_, err := annbind.ExactSearch(dataset, queries, 1, 1, annbind.MetricL2sq,
		annbind.WithMetricsCollector(metrics))
	require.NoError(t, err)

	_, err = annbind.ExactSearch(nil, queries[:1], 1, 1, annbind.MetricL2sq,
		annbind.WithMetricsCollector(metrics))
	require.Error(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.ExactCount)
	assert.Equal(t, int64(4), stats.ExactQueries)
	assert.Equal(t, int64(1), stats.ExactErrors)
}

func TestBasicMetricsCollectorDirect(t *testing.T) {
	t.Run("FreshCollectorIsZero", func(t *testing.T) {
		metrics := &annbind.BasicMetricsCollector{}
		assert.Equal(t, annbind.BasicMetricsStats{}, metrics.GetStats())
	})

	t.Run("Averages", func(t *testing.T) {
		metrics := &annbind.BasicMetricsCollector{}
		metrics.RecordAdd(10*time.Millisecond, nil)
		metrics.RecordAdd(20*time.Millisecond, nil)
		metrics.RecordSearch(5, 4*time.Millisecond, nil)

		stats := metrics.GetStats()
		assert.Equal(t, (15 * time.Millisecond).Nanoseconds(), stats.AddAvgNanos)
		assert.Equal(t, (4 * time.Millisecond).Nanoseconds(), stats.SearchAvgNanos)
	})

	t.Run("ConcurrentRecording", func(t *testing.T) {
		metrics := &annbind.BasicMetricsCollector{}

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 100; n++ {
					metrics.RecordAdd(time.Millisecond, nil)
					metrics.RecordSearch(10, time.Millisecond, nil)
				}
			}()
		}
		wg.Wait()

		stats := metrics.GetStats()
		assert.Equal(t, int64(800), stats.AddCount)
		assert.Equal(t, int64(800), stats.SearchCount)
		assert.Equal(t, time.Millisecond.Nanoseconds(), stats.AddAvgNanos)
	})
}
