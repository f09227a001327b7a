package semcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/config"
	"github.com/debatelab/agora/internal/embedding"
	"github.com/debatelab/agora/internal/vectorstore"
)

// VectorIndex is the slice of the vector store the cache needs.
type VectorIndex interface {
	Upsert(ctx context.Context, points []vectorstore.Point) error
	SearchNearest(ctx context.Context, topic string, vector []float32, k int) ([]vectorstore.ScoredPoint, error)
}

// Recorder mirrors hit/miss accounting into an external metrics sink.
type Recorder interface {
	CacheHit()
	CacheMiss()
}

// Metadata describes the origin of a stored response.
type Metadata struct {
	Topic      string
	AgentID    string
	TokensUsed int
	CostUSD    float64
}

// Hit is a successful cache lookup.
type Hit struct {
	Key          string
	Response     string
	AgentID      string
	Similarity   float64
	TokensSaved  int
	CostSavedUSD float64
}

// Cache is the semantic response cache. All lookup failures degrade to
// a miss so callers never block on cache infrastructure.
type Cache struct {
	cfg      config.CacheConfig
	embedder embedding.Embedder
	index    VectorIndex
	metrics  *Metrics
	recorder Recorder
	logger   *logrus.Logger
}

// NewCache creates the semantic cache. A nil embedder or index leaves
// the cache permanently disabled, which keeps debates functional when
// the vector infrastructure is down.
func NewCache(cfg config.CacheConfig, embedder embedding.Embedder, index VectorIndex, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = 8192
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 3
	}
	if embedder == nil || index == nil {
		cfg.Enabled = false
	}

	logger.WithFields(logrus.Fields{
		"enabled":   cfg.Enabled,
		"threshold": cfg.SimilarityThreshold,
		"ttl":       cfg.TTL,
	}).Info("Semantic cache initialized")

	return &Cache{
		cfg:      cfg,
		embedder: embedder,
		index:    index,
		metrics:  NewMetrics(),
		logger:   logger,
	}
}

// SetRecorder attaches an external hit/miss sink.
func (c *Cache) SetRecorder(r Recorder) {
	c.recorder = r
}

// IsEnabled reports whether lookups can ever hit.
func (c *Cache) IsEnabled() bool {
	return c.cfg.Enabled
}

// Lookup searches for a semantically equivalent prior response on the
// same topic. The boolean reports whether a usable hit was found; any
// infrastructure failure counts as a miss.
func (c *Cache) Lookup(ctx context.Context, prompt, topic string) (*Hit, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}

	topic = bucket(topic)
	normalized := c.normalize(prompt)
	if normalized == "" {
		return c.miss("empty prompt", nil)
	}

	vector, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		return c.miss("embedding failed", err)
	}

	results, err := c.index.SearchNearest(ctx, topic, vector, c.cfg.SearchLimit)
	if err != nil {
		return c.miss("vector search failed", err)
	}
	if len(results) == 0 {
		return c.miss("no candidates", nil)
	}

	best := results[0]
	similarity := 1 - best.Distance
	if similarity < c.cfg.SimilarityThreshold {
		c.logger.WithFields(logrus.Fields{
			"topic":      topic,
			"similarity": similarity,
			"threshold":  c.cfg.SimilarityThreshold,
		}).Debug("Best candidate below similarity threshold")
		return c.miss("below threshold", nil)
	}

	response, _ := best.Payload["response"].(string)
	if response == "" {
		return c.miss("malformed payload", nil)
	}

	agentID, _ := best.Payload["agent_id"].(string)
	tokensSaved := intFromPayload(best.Payload, "tokens_used")
	if tokensSaved == 0 {
		tokensSaved = len(response) / 4
	}
	costSaved, _ := best.Payload["cost_usd"].(float64)

	c.metrics.RecordHit(similarity, tokensSaved, costSaved)
	if c.recorder != nil {
		c.recorder.CacheHit()
	}

	c.logger.WithFields(logrus.Fields{
		"topic":      topic,
		"key":        best.ID,
		"similarity": similarity,
	}).Debug("Semantic cache hit")

	return &Hit{
		Key:          best.ID,
		Response:     response,
		AgentID:      agentID,
		Similarity:   similarity,
		TokensSaved:  tokensSaved,
		CostSavedUSD: costSaved,
	}, true
}

// Store persists a generated response for future semantic reuse. The
// returned key is stable for a given topic and normalized prompt, so
// repeat stores overwrite instead of duplicating.
func (c *Cache) Store(ctx context.Context, prompt, response string, meta Metadata) (string, error) {
	if !c.cfg.Enabled {
		return "", nil
	}

	topic := bucket(meta.Topic)
	normalized := c.normalize(prompt)
	if normalized == "" {
		return "", fmt.Errorf("cannot cache empty prompt")
	}
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("cannot cache empty response")
	}

	vector, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("failed to embed prompt: %w", err)
	}

	key := c.Key(topic, normalized)
	now := time.Now()

	point := vectorstore.Point{
		ID:     key,
		Vector: vector,
		Payload: map[string]interface{}{
			"response":    response,
			"prompt":      normalized,
			"topic":       topic,
			"agent_id":    meta.AgentID,
			"tokens_used": meta.TokensUsed,
			"cost_usd":    meta.CostUSD,
			"created_at":  float64(now.Unix()),
			"expires_at":  float64(now.Add(c.cfg.TTL).Unix()),
		},
	}

	if err := c.index.Upsert(ctx, []vectorstore.Point{point}); err != nil {
		return "", fmt.Errorf("failed to store response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"topic": topic,
		"key":   key,
		"agent": meta.AgentID,
	}).Debug("Response cached")

	return key, nil
}

// MetricsSnapshot returns consistent cache accounting.
func (c *Cache) MetricsSnapshot() Snapshot {
	snap := c.metrics.Snapshot()
	snap.Enabled = c.cfg.Enabled
	return snap
}

// Key derives the deterministic entry key for a topic and prompt.
// Qdrant point IDs must be UUIDs, so the content hash is expressed as a
// name-based UUID.
func (c *Cache) Key(topic, prompt string) string {
	name := fmt.Sprintf("agora:response:%s\x00%s", bucket(topic), c.normalize(prompt))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// bucket maps the empty topic to a shared default so untagged prompts
// still get topic-scoped isolation from every named topic.
func bucket(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "general"
	}
	return topic
}

func (c *Cache) normalize(prompt string) string {
	collapsed := strings.Join(strings.Fields(prompt), " ")
	if c.cfg.MaxPromptLength > 0 {
		runes := []rune(collapsed)
		if len(runes) > c.cfg.MaxPromptLength {
			collapsed = strings.TrimSpace(string(runes[:c.cfg.MaxPromptLength]))
		}
	}
	return collapsed
}

func (c *Cache) miss(reason string, err error) (*Hit, bool) {
	c.metrics.RecordMiss()
	if c.recorder != nil {
		c.recorder.CacheMiss()
	}
	if err != nil {
		c.logger.WithError(err).WithField("reason", reason).Debug("Semantic cache miss")
	}
	return nil, false
}

func intFromPayload(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
