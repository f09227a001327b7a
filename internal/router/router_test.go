package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debatelab/agora/internal/debate"
	"github.com/debatelab/agora/internal/events"
	"github.com/debatelab/agora/internal/handlers"
	"github.com/debatelab/agora/internal/metrics"
	"github.com/debatelab/agora/internal/models"
	"github.com/debatelab/agora/internal/notifications"
	"github.com/debatelab/agora/internal/semcache"
)

type stubScheduler struct{}

func (stubScheduler) StartDebate(debate.StartRequest) (string, error) { return "session-1", nil }
func (stubScheduler) Stop(string) error                               { return nil }
func (stubScheduler) StopAll() int                                    { return 0 }
func (stubScheduler) Active() []*models.SessionSnapshot               { return nil }
func (stubScheduler) Get(string) (*models.SessionSnapshot, bool)      { return nil, false }
func (stubScheduler) IncrementFactChecks(string) (int, error)         { return 1, nil }

type stubTranscript struct{}

func (stubTranscript) RecentMessages(context.Context, string, int64) ([]models.DebateMessage, error) {
	return nil, nil
}

type stubDirectory struct{}

func (stubDirectory) Get(context.Context, string) (*models.AgentProfile, error) {
	return &models.AgentProfile{ID: "socrates", Name: "Socrates", Role: "philosopher"}, nil
}
func (stubDirectory) Set(context.Context, *models.AgentProfile) error { return nil }
func (stubDirectory) List(context.Context) ([]*models.AgentProfile, error) {
	return nil, nil
}

type stubCache struct{}

func (stubCache) MetricsSnapshot() semcache.Snapshot { return semcache.Snapshot{Enabled: true} }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testDeps() Deps {
	logger := quietLogger()
	return Deps{
		Debates: handlers.NewDebateHandler(stubScheduler{}, stubTranscript{}, logger),
		Agents:  handlers.NewAgentHandler(stubDirectory{}, logger),
		Cache:   handlers.NewCacheHandler(stubCache{}),
	}
}

func serve(engine *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	engine.ServeHTTP(w, req)
	return w
}

func TestRouterServesCoreEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := SetupRouter(testDeps())

	t.Run("health", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp["status"])
	})

	t.Run("start debate", func(t *testing.T) {
		body, _ := json.Marshal(gin.H{
			"topic":        "test topic",
			"participants": []string{"a", "b"},
		})
		w := serve(engine, http.MethodPost, "/api/v1/debates", body)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("list debates", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/api/v1/debates", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("stop-all does not collide with id routes", func(t *testing.T) {
		w := serve(engine, http.MethodPost, "/api/v1/debates/stop-all", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("get debate", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/api/v1/debates/abc", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("stop debate", func(t *testing.T) {
		w := serve(engine, http.MethodDelete, "/api/v1/debates/abc", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("transcript", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/api/v1/debates/abc/transcript", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("fact checks", func(t *testing.T) {
		w := serve(engine, http.MethodPost, "/api/v1/debates/abc/fact-checks", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("agents", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/api/v1/agents", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = serve(engine, http.MethodGet, "/api/v1/agents/socrates", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		body, _ := json.Marshal(gin.H{"name": "Zeno", "role": "stoic"})
		w = serve(engine, http.MethodPut, "/api/v1/agents/zeno-7", body)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("cache metrics", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/api/v1/cache/metrics", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var snap semcache.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.True(t, snap.Enabled)
	})
}

func TestRouterOptionalRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("absent metrics and hub are not routed", func(t *testing.T) {
		engine := SetupRouter(testDeps())

		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/metrics", nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/ws", nil).Code)
	})

	t.Run("metrics endpoint scrapes collector", func(t *testing.T) {
		collector := metrics.NewCollector()
		collector.CacheMiss()

		deps := testDeps()
		deps.Metrics = collector.Handler()
		engine := SetupRouter(deps)

		w := serve(engine, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "agora_cache_misses_total 1")
	})

	t.Run("ws route rejects plain http", func(t *testing.T) {
		bus := events.NewBus(&events.BusConfig{BufferSize: 8, PublishTimeout: time.Millisecond})
		hub := notifications.NewHub(nil, bus, quietLogger())
		hub.Start()
		t.Cleanup(func() {
			hub.Stop()
			bus.Close()
		})

		deps := testDeps()
		deps.Hub = hub
		engine := SetupRouter(deps)

		// No upgrade headers, so the websocket handshake fails.
		w := serve(engine, http.MethodGet, "/ws", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
