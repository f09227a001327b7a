package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/models"
	"github.com/debatelab/agora/internal/profiles"
)

// ProfileDirectory is the slice of the profile store the agent
// endpoints need.
type ProfileDirectory interface {
	Get(ctx context.Context, agentID string) (*models.AgentProfile, error)
	Set(ctx context.Context, profile *models.AgentProfile) error
	List(ctx context.Context) ([]*models.AgentProfile, error)
}

// AgentHandler handles agent profile endpoints.
type AgentHandler struct {
	profiles ProfileDirectory
	log      *logrus.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(profiles ProfileDirectory, log *logrus.Logger) *AgentHandler {
	if log == nil {
		log = logrus.New()
	}
	return &AgentHandler{
		profiles: profiles,
		log:      log,
	}
}

// ListAgents handles GET /api/v1/agents.
func (h *AgentHandler) ListAgents(c *gin.Context) {
	agents, err := h.profiles.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list agent profiles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}

// GetAgent handles GET /api/v1/agents/:id.
func (h *AgentHandler) GetAgent(c *gin.Context) {
	id := c.Param("id")

	profile, err := h.profiles.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.log.WithError(err).WithField("agent_id", id).Error("Failed to load agent profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile store unavailable"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpsertAgentRequest represents an agent profile write.
type UpsertAgentRequest struct {
	Name    string             `json:"name" binding:"required"`
	Role    string             `json:"role" binding:"required"`
	Tone    string             `json:"tone"`
	Biases  []string           `json:"biases"`
	Stances map[string]float64 `json:"stances"`
}

// UpsertAgent handles PUT /api/v1/agents/:id.
func (h *AgentHandler) UpsertAgent(c *gin.Context) {
	id := c.Param("id")

	var req UpsertAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.WithError(err).Error("Failed to bind agent profile request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := &models.AgentProfile{
		ID:      id,
		Name:    req.Name,
		Role:    req.Role,
		Tone:    req.Tone,
		Biases:  req.Biases,
		Stances: req.Stances,
	}

	if err := h.profiles.Set(c.Request.Context(), profile); err != nil {
		h.log.WithError(err).WithField("agent_id", id).Error("Failed to store agent profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile store unavailable"})
		return
	}

	h.log.WithFields(logrus.Fields{
		"agent_id": id,
		"name":     req.Name,
	}).Info("Agent profile updated")

	c.JSON(http.StatusOK, profile)
}
