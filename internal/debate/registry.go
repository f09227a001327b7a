package debate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/models"
)

// Registry is the process-wide table of live sessions. It is the only
// mutable structure shared between scheduler loops.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *logrus.Logger

	startMu   sync.Mutex
	nextStart time.Time
	cooldown  time.Duration
}

// NewRegistry creates an empty session registry. A non-positive
// cooldown disables start throttling.
func NewRegistry(cooldown time.Duration, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		cooldown: cooldown,
	}
}

// Insert registers a session, rejecting identifiers already live.
func (r *Registry) Insert(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.ID]; exists {
		return models.Conflict("registry.insert", fmt.Errorf("%w: %s", models.ErrSessionExists, sess.ID))
	}
	r.sessions[sess.ID] = sess

	r.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"topic":      sess.Topic,
	}).Debug("Session registered")
	return nil
}

// Remove deletes a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Has reports whether a session is still live.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Active returns snapshots of all live sessions, oldest first.
func (r *Registry) Active() []*models.SessionSnapshot {
	r.mu.RLock()
	snaps := make([]*models.SessionSnapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snaps = append(snaps, sess.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

// Stop flags one session for cooperative cancellation.
func (r *Registry) Stop(id string) error {
	sess, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("stop %s: %w", id, models.ErrSessionNotFound)
	}
	sess.Cancel()
	r.logger.WithField("session_id", id).Info("Stop requested")
	return nil
}

// StopAll flags every live session and reports how many were flagged.
func (r *Registry) StopAll() int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	for _, sess := range sessions {
		sess.Cancel()
	}
	return len(sessions)
}

// IncrementFactChecks bumps a session's fact-check counter.
func (r *Registry) IncrementFactChecks(id string) (int, error) {
	sess, ok := r.Get(id)
	if !ok {
		return 0, fmt.Errorf("fact-check %s: %w", id, models.ErrSessionNotFound)
	}
	return sess.IncrementFactChecks(), nil
}

// throttleStart spaces session starts by the configured cooldown.
// Each caller reserves the next free start slot and sleeps until it
// opens, so bursts of start requests are serialized.
func (r *Registry) throttleStart() {
	if r.cooldown <= 0 {
		return
	}

	r.startMu.Lock()
	now := time.Now()
	var wait time.Duration
	if r.nextStart.After(now) {
		wait = r.nextStart.Sub(now)
		r.nextStart = r.nextStart.Add(r.cooldown)
	} else {
		r.nextStart = now.Add(r.cooldown)
	}
	r.startMu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}
