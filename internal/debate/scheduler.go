package debate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/config"
	"github.com/debatelab/agora/internal/events"
	"github.com/debatelab/agora/internal/models"
	"github.com/debatelab/agora/internal/pipeline"
)

// Turn outcomes as recorded against the metrics collector.
const (
	TurnSuccess = "success"
	TurnError   = "error"
	TurnForced  = "forced"
)

// MessageGenerator produces one statement per turn.
type MessageGenerator interface {
	Generate(ctx context.Context, req pipeline.Request) (*models.GenerationResult, error)
}

// TranscriptWriter is the slice of the transcript log the scheduler
// needs: persisting turns and re-reading the tail for verification.
type TranscriptWriter interface {
	AppendMessage(ctx context.Context, msg *models.DebateMessage) (string, error)
	AppendMemory(ctx context.Context, agentID string, msg *models.DebateMessage) (string, error)
	RecentMessages(ctx context.Context, sessionID string, count int64) ([]models.DebateMessage, error)
}

// StanceReinforcer hardens an agent's stance after a completed turn.
type StanceReinforcer interface {
	ReinforceStance(ctx context.Context, agentID, topic string, drift float64) (float64, error)
}

// SessionArchive records session lifecycle to durable storage.
type SessionArchive interface {
	SessionStarted(ctx context.Context, snap *models.SessionSnapshot) error
	SessionFinished(ctx context.Context, snap *models.SessionSnapshot) error
}

// SchedulerMetrics receives scheduler observations.
type SchedulerMetrics interface {
	SessionStarted()
	SessionEnded()
	TurnOutcome(outcome string)
	GenerationObserved(seconds float64)
}

// StartRequest describes a debate to run.
type StartRequest struct {
	SessionID    string
	Topic        string
	Participants []string
	Rounds       int
}

// Scheduler drives debate sessions. Each session runs in its own
// goroutine with strictly serialized turns; sessions share nothing but
// the registry and the start cooldown.
type Scheduler struct {
	cfg        config.DebateConfig
	registry   *Registry
	generator  MessageGenerator
	transcript TranscriptWriter
	stances    StanceReinforcer
	bus        *events.Bus
	archive    SessionArchive
	metrics    SchedulerMetrics
	logger     *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler wires the turn scheduler. The archive, stance
// reinforcer, bus, and metrics sink are optional.
func NewScheduler(
	cfg config.DebateConfig,
	registry *Registry,
	generator MessageGenerator,
	transcript TranscriptWriter,
	stances StanceReinforcer,
	bus *events.Bus,
	archive SessionArchive,
	metrics SchedulerMetrics,
	logger *logrus.Logger,
) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = 3
	}
	if cfg.PollSlice <= 0 {
		cfg.PollSlice = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:        cfg,
		registry:   registry,
		generator:  generator,
		transcript: transcript,
		stances:    stances,
		bus:        bus,
		archive:    archive,
		metrics:    metrics,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// StartDebate validates the request, registers the session, and spawns
// its run loop. Returns the session id.
func (s *Scheduler) StartDebate(req StartRequest) (string, error) {
	if req.Topic == "" {
		return "", fmt.Errorf("debate topic is required")
	}
	if len(req.Participants) < 2 {
		return "", fmt.Errorf("a debate needs at least two participants, got %d", len(req.Participants))
	}
	seen := make(map[string]bool, len(req.Participants))
	for _, id := range req.Participants {
		if id == "" {
			return "", fmt.Errorf("participant ids must be non-empty")
		}
		if seen[id] {
			return "", fmt.Errorf("duplicate participant %q", id)
		}
		seen[id] = true
	}

	rounds := req.Rounds
	if rounds <= 0 {
		rounds = s.cfg.Rounds
	}
	id := req.SessionID
	if id == "" {
		id = uuid.New().String()
	}

	sess := NewSession(id, req.Topic, req.Participants, rounds)
	if err := s.registry.Insert(sess); err != nil {
		return "", err
	}

	s.registry.throttleStart()
	sess.Start()

	s.publish(events.NewEvent(events.EventDebateStarted, id, map[string]interface{}{
		"topic":        req.Topic,
		"participants": req.Participants,
		"rounds":       rounds,
	}))
	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	if s.archive != nil {
		if err := s.archive.SessionStarted(s.ctx, sess.Snapshot()); err != nil {
			s.logger.WithError(err).WithField("session_id", id).Warn("Failed to archive session start")
		}
	}

	s.wg.Add(1)
	go s.runLoop(sess)

	return id, nil
}

// Stop requests cancellation of one session.
func (s *Scheduler) Stop(id string) error {
	return s.registry.Stop(id)
}

// StopAll requests cancellation of every live session.
func (s *Scheduler) StopAll() int {
	return s.registry.StopAll()
}

// Active returns snapshots of live sessions.
func (s *Scheduler) Active() []*models.SessionSnapshot {
	return s.registry.Active()
}

// Get returns the snapshot of one live session.
func (s *Scheduler) Get(id string) (*models.SessionSnapshot, bool) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return nil, false
	}
	return sess.Snapshot(), true
}

// IncrementFactChecks bumps a session's fact-check counter.
func (s *Scheduler) IncrementFactChecks(id string) (int, error) {
	return s.registry.IncrementFactChecks(id)
}

// Shutdown stops all sessions and waits for their loops to drain.
// When ctx expires first, in-flight generations are hard-cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) {
	stopped := s.StopAll()
	s.logger.WithField("sessions", stopped).Info("Scheduler shutting down")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
}

// runLoop executes one session to its attempt ceiling. Every iteration
// is one Turn Attempt; deferrals for agent pacing stay within their
// iteration and do not consume an attempt.
func (s *Scheduler) runLoop(sess *Session) {
	defer s.wg.Done()

	log := s.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"topic":      sess.Topic,
	})
	total := sess.TotalTurns()

	log.WithFields(logrus.Fields{
		"participants": len(sess.Participants),
		"rounds":       sess.Rounds,
		"total_turns":  total,
	}).Info("Debate running")

	for sess.Attempted() < total {
		if s.interrupted(sess) {
			break
		}

		agentID := sess.CurrentAgent()

		if wait := sess.DelayRemaining(agentID, s.cfg.MinAgentDelay); wait > 0 {
			log.WithFields(logrus.Fields{
				"agent_id": agentID,
				"wait":     wait,
			}).Debug("Deferring turn until agent min-delay elapses")
			if !s.sleepInterruptible(sess, wait) {
				break
			}
		}

		// The in-memory rotation can lag what was actually persisted
		// (clock skew, competing writers), so re-verify against the
		// transcript tail before letting the candidate speak again.
		if s.justSpoke(sess, agentID) {
			sess.RecordAttempt()
			sess.AdvanceTurn()
			s.observeTurn(TurnForced)
			log.WithField("agent_id", agentID).Warn("Candidate produced the latest persisted message, forcing advance")
			continue
		}

		if s.interrupted(sess) {
			break
		}

		sess.RecordAttempt()
		turn := sess.MessageCount() + 1

		genStart := time.Now()
		result, err := s.generator.Generate(s.ctx, pipeline.Request{
			SessionID: sess.ID,
			AgentID:   agentID,
			Topic:     sess.Topic,
			Turn:      turn,
		})
		if s.metrics != nil {
			s.metrics.GenerationObserved(time.Since(genStart).Seconds())
		}

		// A stop observed during generation discards the result:
		// nothing may be persisted after the signal.
		if s.interrupted(sess) {
			break
		}

		if err != nil {
			s.failTurn(sess, agentID, err, log)
		} else {
			s.commitTurn(sess, agentID, turn, result, log)
		}

		if sess.Attempted() < total {
			if !s.sleepInterruptible(sess, s.cfg.TurnPacing) {
				break
			}
		}
	}

	s.finish(sess, log)
}

// failTurn handles a generation failure: broadcast, advance the
// rotation so the failing agent cannot starve the debate, and leave
// the completed-turn count untouched.
func (s *Scheduler) failTurn(sess *Session, agentID string, err error, log *logrus.Entry) {
	s.observeTurn(TurnError)
	s.publish(events.NewEvent(events.EventDebateError, sess.ID, map[string]interface{}{
		"agent_id": agentID,
		"error":    err.Error(),
		"kind":     string(models.KindOf(err)),
	}))
	sess.AdvanceTurn()
	log.WithError(err).WithField("agent_id", agentID).Warn("Turn failed")
}

// commitTurn persists a generated statement and advances the session.
// Transcript persistence is the commit point; a failed append voids
// the turn. The memory append is best effort.
func (s *Scheduler) commitTurn(sess *Session, agentID string, turn int, result *models.GenerationResult, log *logrus.Entry) {
	msg := &models.DebateMessage{
		ID:         uuid.New().String(),
		SessionID:  sess.ID,
		AgentID:    agentID,
		Topic:      sess.Topic,
		Content:    result.Content,
		Turn:       turn,
		CacheHit:   result.CacheHit,
		Similarity: result.Similarity,
		TokensUsed: result.TokensUsed,
		CostUSD:    result.CostUSD,
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := s.transcript.AppendMessage(s.ctx, msg); err != nil {
		s.observeTurn(TurnError)
		s.publish(events.NewEvent(events.EventDebateError, sess.ID, map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
			"kind":     string(models.ErrKindTransient),
		}))
		sess.AdvanceTurn()
		log.WithError(err).WithField("agent_id", agentID).Error("Failed to persist debate message")
		return
	}

	if _, err := s.transcript.AppendMemory(s.ctx, agentID, msg); err != nil {
		log.WithError(err).WithField("agent_id", agentID).Warn("Failed to append agent memory")
	}

	sess.CompleteTurn(agentID, result)
	s.observeTurn(TurnSuccess)

	s.publish(events.NewEvent(events.EventDebateMessage, sess.ID, msg))
	if result.CacheHit {
		s.publish(events.NewEvent(events.EventCacheHit, sess.ID, map[string]interface{}{
			"agent_id":   agentID,
			"similarity": result.Similarity,
		}))
	} else {
		s.publish(events.NewEvent(events.EventCacheMiss, sess.ID, map[string]interface{}{
			"agent_id": agentID,
		}))
	}

	s.driftStance(sess, agentID)

	log.WithFields(logrus.Fields{
		"agent_id":  agentID,
		"turn":      turn,
		"cache_hit": result.CacheHit,
	}).Debug("Turn completed")
}

// finish marks the terminal status, archives, broadcasts, and removes
// the session from the registry.
func (s *Scheduler) finish(sess *Session, log *logrus.Entry) {
	status := models.SessionCompleted
	if sess.Cancelled() || s.ctx.Err() != nil {
		status = models.SessionStopped
	}
	sess.Finish(status)
	snap := sess.Snapshot()

	eventType := events.EventDebateCompleted
	if status == models.SessionStopped {
		eventType = events.EventDebateStopped
	}
	s.publish(events.NewEvent(eventType, sess.ID, snap))

	if s.archive != nil {
		// The scheduler context may already be cancelled during
		// shutdown; the final archive write gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.archive.SessionFinished(ctx, snap); err != nil {
			log.WithError(err).Warn("Failed to archive session outcome")
		}
		cancel()
	}
	if s.metrics != nil {
		s.metrics.SessionEnded()
	}

	s.registry.Remove(sess.ID)

	log.WithFields(logrus.Fields{
		"status":          status,
		"completed_turns": snap.CompletedTurns,
		"attempted_turns": snap.AttemptedTurns,
		"duration":        snap.FinishedAt.Sub(snap.StartedAt),
	}).Info("Debate finished")
}

// interrupted reports whether the loop must abandon the session:
// cancellation flag, registry eviction, or scheduler shutdown.
func (s *Scheduler) interrupted(sess *Session) bool {
	return sess.Cancelled() || !s.registry.Has(sess.ID) || s.ctx.Err() != nil
}

// justSpoke checks the persisted transcript tail for the candidate. A
// read failure defers to in-memory state rather than blocking the turn.
func (s *Scheduler) justSpoke(sess *Session, agentID string) bool {
	recent, err := s.transcript.RecentMessages(s.ctx, sess.ID, 2)
	if err != nil || len(recent) == 0 {
		return false
	}
	return recent[len(recent)-1].AgentID == agentID
}

// sleepInterruptible waits for d in poll-slice increments, returning
// false as soon as the session is interrupted.
func (s *Scheduler) sleepInterruptible(sess *Session, d time.Duration) bool {
	if d <= 0 {
		return !s.interrupted(sess)
	}

	deadline := time.Now().Add(d)
	for {
		if s.interrupted(sess) {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := s.cfg.PollSlice
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
}

func (s *Scheduler) driftStance(sess *Session, agentID string) {
	if s.stances == nil || s.cfg.StanceDrift <= 0 {
		return
	}
	stance, err := s.stances.ReinforceStance(s.ctx, agentID, sess.Topic, s.cfg.StanceDrift)
	if err != nil {
		s.logger.WithError(err).WithField("agent_id", agentID).Debug("Stance reinforcement failed")
		return
	}
	s.publish(events.NewEvent(events.EventAgentStanceChanged, sess.ID, map[string]interface{}{
		"agent_id": agentID,
		"topic":    sess.Topic,
		"stance":   stance,
	}))
}

func (s *Scheduler) observeTurn(outcome string) {
	if s.metrics != nil {
		s.metrics.TurnOutcome(outcome)
	}
}

func (s *Scheduler) publish(event *events.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}
