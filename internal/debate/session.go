package debate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/debatelab/agora/internal/models"
)

// Session is one running debate. All mutable state is guarded by the
// session's own lock except the cancellation flag, which is atomic so
// stop requests never contend with the run loop.
type Session struct {
	ID           string
	Topic        string
	Participants []string
	Rounds       int

	cancelled int32

	mu          sync.RWMutex
	status      models.SessionStatus
	turnIndex   int
	lastSpeaker string
	lastSpoke   map[string]time.Time
	attempted   int
	completed   int
	messages    int
	factChecks  int
	tokensUsed  int
	costUSD     float64
	startedAt   time.Time
	finishedAt  time.Time
}

// NewSession creates a pending session.
func NewSession(id, topic string, participants []string, rounds int) *Session {
	return &Session{
		ID:           id,
		Topic:        topic,
		Participants: participants,
		Rounds:       rounds,
		status:       models.SessionPending,
		lastSpoke:    make(map[string]time.Time, len(participants)),
	}
}

// Cancel requests cooperative termination. The run loop observes the
// flag at every checkpoint.
func (s *Session) Cancel() {
	atomic.StoreInt32(&s.cancelled, 1)
}

// Cancelled reports whether a stop has been requested.
func (s *Session) Cancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1
}

// Start transitions the session to running.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = models.SessionRunning
	s.startedAt = time.Now().UTC()
}

// Finish records the terminal status.
func (s *Session) Finish(status models.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.finishedAt = time.Now().UTC()
}

// Status returns the current lifecycle state.
func (s *Session) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// TotalTurns is the attempt ceiling: rounds times participants.
func (s *Session) TotalTurns() int {
	return s.Rounds * len(s.Participants)
}

// CurrentAgent returns the participant whose turn it is.
func (s *Session) CurrentAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Participants[s.turnIndex]
}

// AdvanceTurn rotates speaking rights to the next participant.
func (s *Session) AdvanceTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnIndex = (s.turnIndex + 1) % len(s.Participants)
}

// RecordAttempt counts one scheduling attempt against the ceiling and
// returns the new total.
func (s *Session) RecordAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted++
	return s.attempted
}

// Attempted reports scheduling attempts so far.
func (s *Session) Attempted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempted
}

// CompletedTurns reports successfully persisted turns.
func (s *Session) CompletedTurns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed
}

// MessageCount reports persisted messages, which doubles as the turn
// number seed for the next statement.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages
}

// DelayRemaining reports how much longer an agent must wait before it
// may speak again. Zero means the agent is eligible now.
func (s *Session) DelayRemaining(agentID string, minDelay time.Duration) time.Duration {
	if minDelay <= 0 {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.lastSpoke[agentID]
	if !ok {
		return 0
	}
	remaining := minDelay - time.Since(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CompleteTurn records a successfully persisted statement and rotates
// to the next participant.
func (s *Session) CompleteTurn(agentID string, result *models.GenerationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSpeaker = agentID
	s.lastSpoke[agentID] = time.Now()
	s.completed++
	s.messages++
	s.tokensUsed += result.TokensUsed
	s.costUSD += result.CostUSD
	s.turnIndex = (s.turnIndex + 1) % len(s.Participants)
}

// LastSpeaker reports who produced the most recent persisted message.
func (s *Session) LastSpeaker() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSpeaker
}

// IncrementFactChecks bumps the session's fact-check counter.
func (s *Session) IncrementFactChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factChecks++
	return s.factChecks
}

// Snapshot copies the session state for API callers.
func (s *Session) Snapshot() *models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := make([]string, len(s.Participants))
	copy(participants, s.Participants)

	return &models.SessionSnapshot{
		ID:              s.ID,
		Topic:           s.Topic,
		Participants:    participants,
		Rounds:          s.Rounds,
		Status:          s.status,
		TurnIndex:       s.turnIndex,
		LastSpeaker:     s.lastSpeaker,
		AttemptedTurns:  s.attempted,
		CompletedTurns:  s.completed,
		MessageCount:    s.messages,
		FactCheckCount:  s.factChecks,
		TotalTokensUsed: s.tokensUsed,
		TotalCostUSD:    s.costUSD,
		StartedAt:       s.startedAt,
		FinishedAt:      s.finishedAt,
	}
}
