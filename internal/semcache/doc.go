// Package semcache provides the semantic response cache for debates.
//
// Unlike an exact-match cache, semcache retrieves responses for prompts
// that are merely similar in meaning: prompts are embedded into vectors
// and nearest-neighbor search against Qdrant decides whether a prior
// response is close enough to reuse.
//
// # Lookup Flow
//
//  1. Normalize the prompt (trim, collapse whitespace, truncate).
//  2. Embed the normalized prompt (embedding cache absorbs repeats).
//  3. Search the vector store for the nearest entries under the same
//     topic, excluding expired entries.
//  4. Convert the best distance to a similarity and compare it against
//     the configured threshold. Meeting the threshold is a hit.
//
// Every failure along the way degrades to a miss; the caller then
// generates a fresh response and the debate keeps moving.
//
// # Usage
//
//	cache := semcache.NewCache(cfg.Cache, embedder, qdrantClient, logger)
//
//	if hit, ok := cache.Lookup(ctx, prompt, topic); ok {
//	    return hit.Response
//	}
//
//	response := generate(ctx, prompt)
//	_, _ = cache.Store(ctx, prompt, response, semcache.Metadata{
//	    Topic:   topic,
//	    AgentID: agent.ID,
//	})
//
// # Keys and Deduplication
//
// Entry keys are deterministic UUIDs derived from the topic and the
// normalized prompt, so storing the same prompt twice overwrites the
// existing entry instead of accumulating duplicates.
//
// # Metrics
//
// The cache tracks hits, misses, average hit similarity, and estimated
// token and cost savings. MetricsSnapshot returns a consistent copy:
// the total is derived from hits plus misses at snapshot time, so the
// two always reconcile no matter how many goroutines are recording.
package semcache
