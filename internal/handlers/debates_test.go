package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debatelab/agora/internal/debate"
	"github.com/debatelab/agora/internal/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeScheduler struct {
	startID   string
	startErr  error
	lastStart debate.StartRequest
	stopErr   error
	stopped   []string
	stopAllN  int
	active    []*models.SessionSnapshot
	snapshots map[string]*models.SessionSnapshot
	factN     int
	factErr   error
}

func (f *fakeScheduler) StartDebate(req debate.StartRequest) (string, error) {
	f.lastStart = req
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startID, nil
}

func (f *fakeScheduler) Stop(id string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeScheduler) StopAll() int { return f.stopAllN }

func (f *fakeScheduler) Active() []*models.SessionSnapshot { return f.active }

func (f *fakeScheduler) Get(id string) (*models.SessionSnapshot, bool) {
	snap, ok := f.snapshots[id]
	return snap, ok
}

func (f *fakeScheduler) IncrementFactChecks(id string) (int, error) {
	if f.factErr != nil {
		return 0, f.factErr
	}
	f.factN++
	return f.factN, nil
}

type fakeTranscriptReader struct {
	messages  []models.DebateMessage
	err       error
	lastID    string
	lastCount int64
}

func (f *fakeTranscriptReader) RecentMessages(_ context.Context, sessionID string, count int64) ([]models.DebateMessage, error) {
	f.lastID = sessionID
	f.lastCount = count
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler(c)
	return w
}

func TestStartDebate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("launches debate", func(t *testing.T) {
		sched := &fakeScheduler{startID: "session-1"}
		h := NewDebateHandler(sched, &fakeTranscriptReader{}, newTestLogger())

		w := postJSON(t, h.StartDebate, "/api/v1/debates", StartDebateRequest{
			Topic:        "Is remote work better",
			Participants: []string{"optimist", "skeptic"},
			Rounds:       3,
		})

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "session-1", resp["session_id"])

		assert.Equal(t, "Is remote work better", sched.lastStart.Topic)
		assert.Equal(t, []string{"optimist", "skeptic"}, sched.lastStart.Participants)
		assert.Equal(t, 3, sched.lastStart.Rounds)
	})

	t.Run("rejects missing topic", func(t *testing.T) {
		sched := &fakeScheduler{startID: "unused"}
		h := NewDebateHandler(sched, &fakeTranscriptReader{}, newTestLogger())

		w := postJSON(t, h.StartDebate, "/api/v1/debates", gin.H{
			"participants": []string{"a", "b"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, sched.lastStart.Topic)
	})

	t.Run("maps duplicate session to conflict", func(t *testing.T) {
		sched := &fakeScheduler{
			startErr: models.Conflict("registry.insert", fmt.Errorf("%w: dup", models.ErrSessionExists)),
		}
		h := NewDebateHandler(sched, &fakeTranscriptReader{}, newTestLogger())

		w := postJSON(t, h.StartDebate, "/api/v1/debates", StartDebateRequest{
			SessionID:    "dup",
			Topic:        "t",
			Participants: []string{"a", "b"},
		})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("maps validation failures to bad request", func(t *testing.T) {
		sched := &fakeScheduler{startErr: errors.New("a debate needs at least two participants, got 1")}
		h := NewDebateHandler(sched, &fakeTranscriptReader{}, newTestLogger())

		w := postJSON(t, h.StartDebate, "/api/v1/debates", StartDebateRequest{
			Topic:        "t",
			Participants: []string{"solo"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetDebate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	snap := &models.SessionSnapshot{
		ID:           "s1",
		Topic:        "topic",
		Participants: []string{"a", "b"},
		Status:       models.SessionRunning,
	}
	h := NewDebateHandler(&fakeScheduler{
		snapshots: map[string]*models.SessionSnapshot{"s1": snap},
	}, &fakeTranscriptReader{}, newTestLogger())

	t.Run("returns snapshot", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "s1"}}
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/debates/s1", nil)

		h.GetDebate(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var got models.SessionSnapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "s1", got.ID)
		assert.Equal(t, models.SessionRunning, got.Status)
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "ghost"}}
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/debates/ghost", nil)

		h.GetDebate(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListDebates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewDebateHandler(&fakeScheduler{
		active: []*models.SessionSnapshot{
			{ID: "s1", Status: models.SessionRunning},
			{ID: "s2", Status: models.SessionRunning},
		},
	}, &fakeTranscriptReader{}, newTestLogger())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/debates", nil)

	h.ListDebates(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sessions []models.SessionSnapshot `json:"sessions"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Sessions, 2)
}

func TestStopDebate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("requests cancellation", func(t *testing.T) {
		sched := &fakeScheduler{}
		h := NewDebateHandler(sched, &fakeTranscriptReader{}, newTestLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "s1"}}
		c.Request = httptest.NewRequest(http.MethodDelete, "/api/v1/debates/s1", nil)

		h.StopDebate(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"s1"}, sched.stopped)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "stopping", resp["status"])
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		sched := &fakeScheduler{
			stopErr: fmt.Errorf("stop ghost: %w", models.ErrSessionNotFound),
		}
		h := NewDebateHandler(sched, &fakeTranscriptReader{}, newTestLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "ghost"}}
		c.Request = httptest.NewRequest(http.MethodDelete, "/api/v1/debates/ghost", nil)

		h.StopDebate(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestStopAllDebates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewDebateHandler(&fakeScheduler{stopAllN: 3}, &fakeTranscriptReader{}, newTestLogger())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/debates/stop-all", nil)

	h.StopAll(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp["stopped"])
}

func TestGetTranscript(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	messages := []models.DebateMessage{
		{ID: "m1", SessionID: "s1", AgentID: "a", Content: "first", Turn: 1, CreatedAt: now},
		{ID: "m2", SessionID: "s1", AgentID: "b", Content: "second", Turn: 2, CreatedAt: now.Add(time.Second)},
	}

	t.Run("returns recent messages", func(t *testing.T) {
		reader := &fakeTranscriptReader{messages: messages}
		h := NewDebateHandler(&fakeScheduler{}, reader, newTestLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "s1"}}
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/debates/s1/transcript", nil)

		h.GetTranscript(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "s1", reader.lastID)
		assert.Equal(t, int64(50), reader.lastCount)

		var resp struct {
			SessionID string                 `json:"session_id"`
			Messages  []models.DebateMessage `json:"messages"`
			Count     int                    `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "first", resp.Messages[0].Content)
	})

	t.Run("honors count parameter", func(t *testing.T) {
		reader := &fakeTranscriptReader{messages: messages}
		h := NewDebateHandler(&fakeScheduler{}, reader, newTestLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "s1"}}
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/debates/s1/transcript?count=5", nil)

		h.GetTranscript(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(5), reader.lastCount)
	})

	t.Run("rejects invalid count", func(t *testing.T) {
		reader := &fakeTranscriptReader{}
		h := NewDebateHandler(&fakeScheduler{}, reader, newTestLogger())

		for _, raw := range []string{"0", "-3", "many"} {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Params = gin.Params{{Key: "id", Value: "s1"}}
			c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/debates/s1/transcript?count="+raw, nil)

			h.GetTranscript(c)

			assert.Equal(t, http.StatusBadRequest, w.Code, "count=%s", raw)
		}
	})

	t.Run("storage failure is internal error", func(t *testing.T) {
		reader := &fakeTranscriptReader{err: errors.New("redis down")}
		h := NewDebateHandler(&fakeScheduler{}, reader, newTestLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "s1"}}
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/debates/s1/transcript", nil)

		h.GetTranscript(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAddFactCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("increments counter", func(t *testing.T) {
		h := NewDebateHandler(&fakeScheduler{}, &fakeTranscriptReader{}, newTestLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "s1"}}
		c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/debates/s1/fact-checks", nil)

		h.AddFactCheck(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			FactChecks int `json:"fact_checks"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.FactChecks)
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		h := NewDebateHandler(&fakeScheduler{factErr: models.ErrSessionNotFound}, &fakeTranscriptReader{}, newTestLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "ghost"}}
		c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/debates/ghost/fact-checks", nil)

		h.AddFactCheck(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
