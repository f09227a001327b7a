// Package vectorstore provides the Qdrant-backed persistence layer for
// cached debate responses. Entries carry an expires_at payload field;
// searches filter expired entries out and a janitor purges them.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/config"
)

// Point is a stored vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a search result. Distance is 1 minus the cosine score
// reported by Qdrant, so 0 means an exact match.
type ScoredPoint struct {
	ID       string
	Distance float64
	Payload  map[string]interface{}
}

// Client talks to Qdrant over its REST API.
type Client struct {
	cfg        config.QdrantConfig
	httpClient *http.Client
	logger     *logrus.Logger
	mu         sync.RWMutex
	connected  bool
}

// NewClient creates a Qdrant client. It does not touch the network;
// call Connect to verify reachability.
func NewClient(cfg config.QdrantConfig, logger *logrus.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("qdrant vector size must be positive")
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

func (c *Client) baseURL() string {
	scheme := "http"
	if c.cfg.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, c.cfg.Host, c.cfg.Port)
}

// Collection returns the collection this client operates on.
func (c *Client) Collection() string {
	return c.cfg.Collection
}

// Connect verifies connectivity to Qdrant.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Root endpoint works across Qdrant versions; newer releases
	// dropped the dedicated /health endpoint.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant unhealthy status: %d", resp.StatusCode)
	}

	c.connected = true
	c.logger.WithField("collection", c.cfg.Collection).Info("Connected to Qdrant")
	return nil
}

// IsConnected returns whether Connect has succeeded.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close marks the client disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := fmt.Sprintf("%s%s", c.baseURL(), path)

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// EnsureCollection creates the configured collection if it does not
// already exist. Safe to call on every startup.
func (c *Client) EnsureCollection(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", c.cfg.Collection)

	if _, err := c.doRequest(ctx, http.MethodGet, path, nil); err == nil {
		c.logger.WithField("collection", c.cfg.Collection).Debug("Collection already exists")
		return nil
	}

	reqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.cfg.VectorSize,
			"distance": c.cfg.Distance,
		},
	}

	if _, err := c.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection":  c.cfg.Collection,
		"vector_size": c.cfg.VectorSize,
		"distance":    c.cfg.Distance,
	}).Info("Collection created")
	return nil
}

// Upsert inserts or updates points in the collection.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for i := range points {
		if points[i].ID == "" {
			points[i].ID = uuid.New().String()
		}
	}

	reqBody := map[string]interface{}{
		"points": points,
	}

	path := fmt.Sprintf("/collections/%s/points", c.cfg.Collection)
	if _, err := c.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection": c.cfg.Collection,
		"count":      len(points),
	}).Debug("Points upserted")

	return nil
}

// SearchNearest returns the k nearest live points for a topic. Expired
// entries are filtered at search time so a lagging janitor never
// resurrects stale responses.
func (c *Client) SearchNearest(ctx context.Context, topic string, vector []float32, k int) ([]ScoredPoint, error) {
	if k <= 0 {
		k = 1
	}

	reqBody := map[string]interface{}{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter": map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{
					"key":   "topic",
					"match": map[string]interface{}{"value": topic},
				},
				map[string]interface{}{
					"key":   "expires_at",
					"range": map[string]interface{}{"gt": float64(time.Now().Unix())},
				},
			},
		},
	}

	path := fmt.Sprintf("/collections/%s/points/search", c.cfg.Collection)
	respBody, err := c.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var response struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}

	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]ScoredPoint, 0, len(response.Result))
	for _, item := range response.Result {
		results = append(results, ScoredPoint{
			ID:       fmt.Sprintf("%v", item.ID),
			Distance: 1 - item.Score,
			Payload:  item.Payload,
		})
	}

	return results, nil
}

// DeleteExpired removes every point whose expires_at is in the past.
func (c *Client) DeleteExpired(ctx context.Context) error {
	reqBody := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{
					"key":   "expires_at",
					"range": map[string]interface{}{"lt": float64(time.Now().Unix())},
				},
			},
		},
	}

	path := fmt.Sprintf("/collections/%s/points/delete", c.cfg.Collection)
	if _, err := c.doRequest(ctx, http.MethodPost, path, reqBody); err != nil {
		return fmt.Errorf("failed to delete expired points: %w", err)
	}

	c.logger.WithField("collection", c.cfg.Collection).Debug("Expired points purged")
	return nil
}
