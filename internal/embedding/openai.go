package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/config"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. Both
// OpenAI itself and local servers such as Ollama speak this shape.
type OpenAIEmbedder struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
	cache      *Cache
	logger     *logrus.Logger
}

// NewOpenAIEmbedder creates an embedder with a content-hash cache in
// front of the HTTP provider.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, logger *logrus.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}

	return &OpenAIEmbedder{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  NewCache(cfg.CacheSize),
		logger: logger,
	}
}

// Name returns the provider-qualified model name.
func (e *OpenAIEmbedder) Name() string {
	return fmt.Sprintf("openai/%s", e.cfg.Model)
}

// Dimension returns the embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.cfg.Dimension
}

// Embed generates an embedding for the given text, serving repeats from
// the local cache.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(text)
	if cached, ok := e.cache.Get(key); ok {
		e.logger.WithField("key", key[:12]).Debug("Embedding cache hit")
		return cached, nil
	}

	reqBody := map[string]interface{}{
		"input": []string{text},
		"model": e.cfg.Model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/embeddings", strings.TrimSuffix(e.cfg.BaseURL, "/")),
		strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.cfg.APIKey))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	embedding := result.Data[0].Embedding
	e.cache.Set(key, embedding)

	return embedding, nil
}
