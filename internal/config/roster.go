package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/debatelab/agora/internal/models"
)

// Roster is the on-disk description of the agents available for
// debates, loaded once at startup and seeded into the profile store.
type Roster struct {
	Agents []RosterAgent `yaml:"agents"`
}

type RosterAgent struct {
	ID      string             `yaml:"id"`
	Name    string             `yaml:"name"`
	Role    string             `yaml:"role"`
	Tone    string             `yaml:"tone"`
	Biases  []string           `yaml:"biases"`
	Stances map[string]float64 `yaml:"stances"`
}

// LoadRoster reads and validates an agent roster file.
func LoadRoster(path string) ([]models.AgentProfile, error) {
	if path == "" {
		return nil, fmt.Errorf("roster path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	return ParseRoster(data)
}

// ParseRoster decodes roster YAML into agent profiles.
func ParseRoster(data []byte) ([]models.AgentProfile, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster YAML: %w", err)
	}

	if len(roster.Agents) == 0 {
		return nil, fmt.Errorf("roster defines no agents")
	}

	seen := make(map[string]bool, len(roster.Agents))
	profiles := make([]models.AgentProfile, 0, len(roster.Agents))
	for i, agent := range roster.Agents {
		if agent.ID == "" {
			return nil, fmt.Errorf("roster agent %d has no id", i)
		}
		if seen[agent.ID] {
			return nil, fmt.Errorf("roster agent id %q appears twice", agent.ID)
		}
		seen[agent.ID] = true

		name := agent.Name
		if name == "" {
			name = agent.ID
		}

		stances := make(map[string]float64, len(agent.Stances))
		for topic, stance := range agent.Stances {
			stances[topic] = models.ClampStance(stance)
		}

		profiles = append(profiles, models.AgentProfile{
			ID:      agent.ID,
			Name:    name,
			Role:    agent.Role,
			Tone:    agent.Tone,
			Biases:  agent.Biases,
			Stances: stances,
		})
	}

	return profiles, nil
}
