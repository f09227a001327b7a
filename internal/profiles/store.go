// Package profiles stores agent personas in Redis so stance changes
// survive restarts and are shared across instances.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/models"
)

// ErrNotFound is returned when no profile exists for an agent.
var ErrNotFound = errors.New("agent profile not found")

const indexKey = "agents:index"

func profileKey(agentID string) string {
	return fmt.Sprintf("agent:%s:profile", agentID)
}

// Store reads and writes agent profiles.
type Store struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

// NewStore creates a profile store on an existing Redis client.
func NewStore(client redis.UniversalClient, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{client: client, logger: logger}
}

// Get returns an agent's profile.
func (s *Store) Get(ctx context.Context, agentID string) (*models.AgentProfile, error) {
	data, err := s.client.Get(ctx, profileKey(agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", agentID, err)
	}

	var profile models.AgentProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", agentID, err)
	}
	return &profile, nil
}

// Set stores a profile and registers it in the agent index.
func (s *Store) Set(ctx context.Context, profile *models.AgentProfile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("profile id is required")
	}

	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	for topic, stance := range profile.Stances {
		profile.Stances[topic] = models.ClampStance(stance)
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", profile.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, profileKey(profile.ID), data, 0)
		pipe.SAdd(ctx, indexKey, profile.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store profile %s: %w", profile.ID, err)
	}

	s.logger.WithField("agent", profile.ID).Debug("Profile stored")
	return nil
}

// List returns all known profiles ordered by agent id.
func (s *Store) List(ctx context.Context) ([]*models.AgentProfile, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	profiles := make([]*models.AgentProfile, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// Index entry without a profile key; skip it.
			s.logger.WithField("agent", ids[i]).Warn("Indexed agent has no profile")
			continue
		}
		var profile models.AgentProfile
		if err := json.Unmarshal([]byte(data), &profile); err != nil {
			s.logger.WithError(err).WithField("agent", ids[i]).Warn("Skipping undecodable profile")
			continue
		}
		profiles = append(profiles, &profile)
	}

	return profiles, nil
}

// SetStance pins an agent's stance on a topic, clamped to [0,1].
func (s *Store) SetStance(ctx context.Context, agentID, topic string, stance float64) error {
	profile, err := s.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if profile.Stances == nil {
		profile.Stances = make(map[string]float64, 1)
	}
	profile.Stances[topic] = models.ClampStance(stance)
	return s.Set(ctx, profile)
}

// AdjustStance drifts an agent's stance on a topic by delta and returns
// the new clamped value.
func (s *Store) AdjustStance(ctx context.Context, agentID, topic string, delta float64) (float64, error) {
	profile, err := s.Get(ctx, agentID)
	if err != nil {
		return 0, err
	}
	if profile.Stances == nil {
		profile.Stances = make(map[string]float64, 1)
	}
	next := models.ClampStance(profile.StanceOn(topic) + delta)
	profile.Stances[topic] = next
	if err := s.Set(ctx, profile); err != nil {
		return 0, err
	}
	return next, nil
}

// ReinforceStance drifts an agent's stance further toward the side it
// already leans, modeling positions hardening as they are argued.
// Perfectly neutral agents stay neutral. Returns the new value.
func (s *Store) ReinforceStance(ctx context.Context, agentID, topic string, drift float64) (float64, error) {
	profile, err := s.Get(ctx, agentID)
	if err != nil {
		return 0, err
	}

	current := profile.StanceOn(topic)
	switch {
	case current > 0.5:
		return s.AdjustStance(ctx, agentID, topic, drift)
	case current < 0.5:
		return s.AdjustStance(ctx, agentID, topic, -drift)
	default:
		return current, nil
	}
}

// Seed inserts profiles that do not already exist, leaving stored
// state untouched for agents that do. Returns how many were created.
func (s *Store) Seed(ctx context.Context, roster []models.AgentProfile) (int, error) {
	created := 0
	for i := range roster {
		profile := roster[i]
		now := time.Now().UTC()
		profile.CreatedAt = now
		profile.UpdatedAt = now

		data, err := json.Marshal(&profile)
		if err != nil {
			return created, fmt.Errorf("failed to encode roster agent %s: %w", profile.ID, err)
		}

		ok, err := s.client.SetNX(ctx, profileKey(profile.ID), data, 0).Result()
		if err != nil {
			return created, fmt.Errorf("failed to seed agent %s: %w", profile.ID, err)
		}
		if err := s.client.SAdd(ctx, indexKey, profile.ID).Err(); err != nil {
			return created, fmt.Errorf("failed to index agent %s: %w", profile.ID, err)
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		s.logger.WithField("count", created).Info("Seeded agent profiles from roster")
	}
	return created, nil
}
