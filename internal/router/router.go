// Package router assembles the HTTP surface of the debate service.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/debatelab/agora/internal/handlers"
	"github.com/debatelab/agora/internal/notifications"
)

// Deps carries the handlers the router serves. Hub and Metrics are
// optional; their routes are skipped when absent.
type Deps struct {
	Debates     *handlers.DebateHandler
	Agents      *handlers.AgentHandler
	Cache       *handlers.CacheHandler
	Hub         *notifications.Hub
	Metrics     http.Handler
	MetricsPath string
}

// SetupRouter creates and configures the main HTTP router.
func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Metrics endpoint
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics))
	}

	// Live debate event stream
	if deps.Hub != nil {
		r.GET("/ws", deps.Hub.ServeWS)
	}

	v1 := r.Group("/api/v1")
	{
		debates := v1.Group("/debates")
		{
			debates.POST("", deps.Debates.StartDebate)
			debates.GET("", deps.Debates.ListDebates)
			debates.POST("/stop-all", deps.Debates.StopAll)
			debates.GET("/:id", deps.Debates.GetDebate)
			debates.DELETE("/:id", deps.Debates.StopDebate)
			debates.GET("/:id/transcript", deps.Debates.GetTranscript)
			debates.POST("/:id/fact-checks", deps.Debates.AddFactCheck)
		}

		agents := v1.Group("/agents")
		{
			agents.GET("", deps.Agents.ListAgents)
			agents.GET("/:id", deps.Agents.GetAgent)
			agents.PUT("/:id", deps.Agents.UpsertAgent)
		}

		v1.GET("/cache/metrics", deps.Cache.GetMetrics)
	}

	return r
}
