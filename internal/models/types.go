package models

import (
	"time"
)

// SessionStatus tracks the lifecycle of a debate session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionStopped   SessionStatus = "stopped"
	SessionCompleted SessionStatus = "completed"
)

// AgentProfile describes a debate participant: who they are, how they
// argue, and where they stand on the topics they have debated.
type AgentProfile struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Role      string             `json:"role"`
	Tone      string             `json:"tone,omitempty"`
	Biases    []string           `json:"biases,omitempty"`
	Stances   map[string]float64 `json:"stances,omitempty"`
	CreatedAt time.Time          `json:"created_at,omitempty"`
	UpdatedAt time.Time          `json:"updated_at,omitempty"`
}

// StanceOn returns the agent's position on a topic in [0,1], where 0 is
// full opposition and 1 is full support. Unknown topics report 0.5.
func (p *AgentProfile) StanceOn(topic string) float64 {
	if p == nil || p.Stances == nil {
		return 0.5
	}
	if s, ok := p.Stances[topic]; ok {
		return ClampStance(s)
	}
	return 0.5
}

// ClampStance bounds a stance value to the valid [0,1] range.
func ClampStance(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// DebateMessage is a single persisted turn in a debate transcript.
type DebateMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	AgentID    string    `json:"agent_id"`
	AgentName  string    `json:"agent_name,omitempty"`
	Topic      string    `json:"topic"`
	Content    string    `json:"content"`
	Turn       int       `json:"turn"`
	CacheHit   bool      `json:"cache_hit"`
	Similarity float64   `json:"similarity,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	CostUSD    float64   `json:"cost_usd,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GenerationResult carries the outcome of one message generation,
// whether it was served from the semantic cache or a live provider.
type GenerationResult struct {
	Content      string  `json:"content"`
	CacheHit     bool    `json:"cache_hit"`
	Similarity   float64 `json:"similarity,omitempty"`
	TokensUsed   int     `json:"tokens_used"`
	CostUSD      float64 `json:"cost_usd"`
	CostSavedUSD float64 `json:"cost_saved_usd,omitempty"`
	Fallback     bool    `json:"fallback,omitempty"`
	Provider     string  `json:"provider,omitempty"`
	ResponseTime int64   `json:"response_time_ms"`
}

// SessionSnapshot is a point-in-time copy of a session's mutable state,
// safe to serialize and hand to API callers.
type SessionSnapshot struct {
	ID              string        `json:"id"`
	Topic           string        `json:"topic"`
	Participants    []string      `json:"participants"`
	Rounds          int           `json:"rounds"`
	Status          SessionStatus `json:"status"`
	TurnIndex       int           `json:"turn_index"`
	LastSpeaker     string        `json:"last_speaker,omitempty"`
	AttemptedTurns  int           `json:"attempted_turns"`
	CompletedTurns  int           `json:"completed_turns"`
	MessageCount    int           `json:"message_count"`
	FactCheckCount  int           `json:"fact_check_count"`
	TotalTokensUsed int           `json:"total_tokens_used"`
	TotalCostUSD    float64       `json:"total_cost_usd"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at,omitempty"`
}
