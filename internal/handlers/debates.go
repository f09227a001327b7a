// Package handlers exposes debate scheduling, agent profiles, and
// cache accounting over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/debate"
	"github.com/debatelab/agora/internal/models"
)

// Scheduler is the slice of the debate scheduler the HTTP surface
// drives.
type Scheduler interface {
	StartDebate(req debate.StartRequest) (string, error)
	Stop(id string) error
	StopAll() int
	Active() []*models.SessionSnapshot
	Get(id string) (*models.SessionSnapshot, bool)
	IncrementFactChecks(id string) (int, error)
}

// TranscriptReader serves persisted debate messages. Transcripts
// outlive their sessions, so reads go to storage rather than the
// scheduler.
type TranscriptReader interface {
	RecentMessages(ctx context.Context, sessionID string, count int64) ([]models.DebateMessage, error)
}

// DebateHandler handles debate lifecycle endpoints.
type DebateHandler struct {
	scheduler  Scheduler
	transcript TranscriptReader
	log        *logrus.Logger
}

// NewDebateHandler creates a new debate handler.
func NewDebateHandler(scheduler Scheduler, transcript TranscriptReader, log *logrus.Logger) *DebateHandler {
	if log == nil {
		log = logrus.New()
	}
	return &DebateHandler{
		scheduler:  scheduler,
		transcript: transcript,
		log:        log,
	}
}

// StartDebateRequest represents a request to launch a debate.
type StartDebateRequest struct {
	SessionID    string   `json:"session_id"`
	Topic        string   `json:"topic" binding:"required"`
	Participants []string `json:"participants" binding:"required"`
	Rounds       int      `json:"rounds"`
}

// StartDebate handles POST /api/v1/debates.
func (h *DebateHandler) StartDebate(c *gin.Context) {
	var req StartDebateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.WithError(err).Error("Failed to bind start debate request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.scheduler.StartDebate(debate.StartRequest{
		SessionID:    req.SessionID,
		Topic:        req.Topic,
		Participants: req.Participants,
		Rounds:       req.Rounds,
	})
	if err != nil {
		if errors.Is(err, models.ErrSessionExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.log.WithFields(logrus.Fields{
		"session_id":   id,
		"topic":        req.Topic,
		"participants": len(req.Participants),
	}).Info("Debate started")

	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

// ListDebates handles GET /api/v1/debates.
func (h *DebateHandler) ListDebates(c *gin.Context) {
	sessions := h.scheduler.Active()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetDebate handles GET /api/v1/debates/:id.
func (h *DebateHandler) GetDebate(c *gin.Context) {
	id := c.Param("id")

	snap, ok := h.scheduler.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrSessionNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// StopDebate handles DELETE /api/v1/debates/:id. Cancellation is
// cooperative: the session leaves the registry once its loop observes
// the flag, so the response reports "stopping" rather than "stopped".
func (h *DebateHandler) StopDebate(c *gin.Context) {
	id := c.Param("id")

	if err := h.scheduler.Stop(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.log.WithField("session_id", id).Info("Debate stop requested")

	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"status":     "stopping",
	})
}

// StopAll handles POST /api/v1/debates/stop-all.
func (h *DebateHandler) StopAll(c *gin.Context) {
	n := h.scheduler.StopAll()

	h.log.WithField("sessions", n).Info("Stop requested for all debates")

	c.JSON(http.StatusOK, gin.H{"stopped": n})
}

// GetTranscript handles GET /api/v1/debates/:id/transcript. Unknown
// sessions yield an empty transcript, not an error: the stream for a
// finished debate stays readable after the session is gone.
func (h *DebateHandler) GetTranscript(c *gin.Context) {
	id := c.Param("id")

	count := int64(50)
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
			return
		}
		count = parsed
	}

	messages, err := h.transcript.RecentMessages(c.Request.Context(), id, count)
	if err != nil {
		h.log.WithError(err).WithField("session_id", id).Error("Failed to read transcript")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transcript unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"messages":   messages,
		"count":      len(messages),
	})
}

// AddFactCheck handles POST /api/v1/debates/:id/fact-checks.
func (h *DebateHandler) AddFactCheck(c *gin.Context) {
	id := c.Param("id")

	n, err := h.scheduler.IncrementFactChecks(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":  id,
		"fact_checks": n,
	})
}
