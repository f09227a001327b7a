package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/debatelab/agora/internal/semcache"
)

// CacheStats reports semantic cache accounting.
type CacheStats interface {
	MetricsSnapshot() semcache.Snapshot
}

// CacheHandler serves cache hit/miss accounting.
type CacheHandler struct {
	cache CacheStats
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(cache CacheStats) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// GetMetrics handles GET /api/v1/cache/metrics.
func (h *CacheHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.MetricsSnapshot())
}
