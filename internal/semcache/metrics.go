package semcache

import (
	"sync"
	"sync/atomic"
)

// Metrics accumulates cache accounting. Counters are atomics; the
// similarity and cost accumulators sit behind a mutex because they are
// floats.
type Metrics struct {
	hits        int64
	misses      int64
	tokensSaved int64

	mu           sync.Mutex
	simSum       float64
	costSavedUSD float64
}

// NewMetrics creates an empty metrics accumulator.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordHit records a cache hit and its savings.
func (m *Metrics) RecordHit(similarity float64, tokensSaved int, costSavedUSD float64) {
	atomic.AddInt64(&m.hits, 1)
	atomic.AddInt64(&m.tokensSaved, int64(tokensSaved))

	m.mu.Lock()
	m.simSum += similarity
	m.costSavedUSD += costSavedUSD
	m.mu.Unlock()
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss() {
	atomic.AddInt64(&m.misses, 1)
}

// Hits returns the total hits.
func (m *Metrics) Hits() int64 {
	return atomic.LoadInt64(&m.hits)
}

// Misses returns the total misses.
func (m *Metrics) Misses() int64 {
	return atomic.LoadInt64(&m.misses)
}

// Snapshot is a consistent copy of the cache accounting. TotalRequests
// is always Hits+Misses; it is derived at snapshot time rather than
// stored, so the identity holds even under concurrent recording.
type Snapshot struct {
	Enabled          bool    `json:"enabled"`
	TotalRequests    int64   `json:"total_requests"`
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	HitRate          float64 `json:"hit_rate"`
	AvgHitSimilarity float64 `json:"avg_hit_similarity"`
	TokensSaved      int64   `json:"tokens_saved"`
	CostSavedUSD     float64 `json:"cost_saved_usd"`
}

// Snapshot returns the current accounting.
func (m *Metrics) Snapshot() Snapshot {
	hits := atomic.LoadInt64(&m.hits)
	misses := atomic.LoadInt64(&m.misses)
	tokensSaved := atomic.LoadInt64(&m.tokensSaved)

	m.mu.Lock()
	simSum := m.simSum
	costSaved := m.costSavedUSD
	m.mu.Unlock()

	snap := Snapshot{
		TotalRequests: hits + misses,
		Hits:          hits,
		Misses:        misses,
		TokensSaved:   tokensSaved,
		CostSavedUSD:  costSaved,
	}
	if snap.TotalRequests > 0 {
		snap.HitRate = float64(hits) / float64(snap.TotalRequests)
	}
	if hits > 0 {
		snap.AvgHitSimilarity = simSum / float64(hits)
	}
	return snap
}
