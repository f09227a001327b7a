package semcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsEmptySnapshot(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()

	assert.Equal(t, int64(0), snap.TotalRequests)
	assert.Equal(t, float64(0), snap.HitRate)
	assert.Equal(t, float64(0), snap.AvgHitSimilarity)
}

func TestMetricsAccumulation(t *testing.T) {
	m := NewMetrics()
	m.RecordHit(0.90, 100, 0.002)
	m.RecordHit(0.86, 50, 0.001)
	m.RecordMiss()

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.InDelta(t, 2.0/3.0, snap.HitRate, 1e-9)
	assert.InDelta(t, 0.88, snap.AvgHitSimilarity, 1e-9)
	assert.Equal(t, int64(150), snap.TokensSaved)
	assert.InDelta(t, 0.003, snap.CostSavedUSD, 1e-9)
}

func TestMetricsConcurrentIdentity(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if j%3 == 0 {
					m.RecordHit(0.9, 1, 0)
				} else {
					m.RecordMiss()
				}
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, snap.Hits+snap.Misses, snap.TotalRequests)
	assert.Equal(t, int64(8*500), snap.TotalRequests)
}
