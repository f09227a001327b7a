// Package pipeline assembles debate prompts and produces agent
// messages, consulting the semantic response cache before paying for a
// live generation.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/config"
	"github.com/debatelab/agora/internal/llm"
	"github.com/debatelab/agora/internal/models"
	"github.com/debatelab/agora/internal/semcache"
)

// ResponseCache is the slice of the semantic cache the pipeline needs.
type ResponseCache interface {
	Lookup(ctx context.Context, prompt, topic string) (*semcache.Hit, bool)
	Store(ctx context.Context, prompt, response string, meta semcache.Metadata) (string, error)
}

// ProfileReader provides agent profiles for prompt construction.
type ProfileReader interface {
	Get(ctx context.Context, agentID string) (*models.AgentProfile, error)
}

// MemoryReader provides an agent's recent private memory.
type MemoryReader interface {
	AgentMemory(ctx context.Context, agentID string, count int64) ([]string, error)
}

// Request identifies the turn a message is generated for.
type Request struct {
	SessionID string
	AgentID   string
	Topic     string
	Turn      int
}

// Generator orchestrates profile, memory, cache, and provider into a
// single message per turn. It holds no state of its own.
type Generator struct {
	llmCfg   config.LLMConfig
	window   int64
	provider llm.Provider
	cache    ResponseCache
	profiles ProfileReader
	memory   MemoryReader
	logger   *logrus.Logger
}

// NewGenerator wires the message pipeline.
func NewGenerator(
	llmCfg config.LLMConfig,
	debateCfg config.DebateConfig,
	provider llm.Provider,
	cache ResponseCache,
	profiles ProfileReader,
	memory MemoryReader,
	logger *logrus.Logger,
) *Generator {
	if logger == nil {
		logger = logrus.New()
	}
	window := int64(debateCfg.MemoryWindow)
	if window <= 0 {
		window = 6
	}

	return &Generator{
		llmCfg:   llmCfg,
		window:   window,
		provider: provider,
		cache:    cache,
		profiles: profiles,
		memory:   memory,
		logger:   logger,
	}
}

// Generate produces the next statement for an agent. The returned
// result is always usable: on provider failure it carries the fallback
// statement and the error explains what went wrong, classified so the
// scheduler can tell degraded-continue from should-stop.
func (g *Generator) Generate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	start := time.Now()

	profile := g.loadProfile(ctx, req.AgentID)
	memory := g.loadMemory(ctx, req.AgentID)

	systemPrompt := buildSystemPrompt(profile, req.Topic)
	userPrompt := buildUserPrompt(req, memory)

	if g.cache != nil {
		if hit, ok := g.cache.Lookup(ctx, userPrompt, req.Topic); ok {
			g.logger.WithFields(logrus.Fields{
				"session_id": req.SessionID,
				"agent_id":   req.AgentID,
				"similarity": hit.Similarity,
			}).Debug("Serving debate message from semantic cache")

			return &models.GenerationResult{
				Content:      hit.Response,
				CacheHit:     true,
				Similarity:   hit.Similarity,
				CostSavedUSD: hit.CostSavedUSD,
				Provider:     "cache",
				ResponseTime: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	result, err := g.provider.Complete(ctx, &llm.Request{
		System:      systemPrompt,
		Prompt:      userPrompt,
		Temperature: g.llmCfg.Temperature,
		MaxTokens:   g.llmCfg.MaxTokens,
	})
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": req.SessionID,
			"agent_id":   req.AgentID,
		}).Warn("Generation failed, substituting fallback statement")

		return &models.GenerationResult{
			Content:      llm.FallbackStatement,
			Fallback:     true,
			Provider:     g.provider.Name(),
			ResponseTime: time.Since(start).Milliseconds(),
		}, models.Transient("pipeline.generate", err)
	}

	cost := llm.EstimateCost(result.TokensUsed, g.llmCfg.CostPer1KTokens)

	if g.cache != nil {
		_, storeErr := g.cache.Store(ctx, userPrompt, result.Content, semcache.Metadata{
			Topic:      req.Topic,
			AgentID:    req.AgentID,
			TokensUsed: result.TokensUsed,
			CostUSD:    cost,
		})
		if storeErr != nil {
			g.logger.WithError(storeErr).Debug("Semantic cache store failed")
		}
	}

	return &models.GenerationResult{
		Content:      result.Content,
		CacheHit:     false,
		TokensUsed:   result.TokensUsed,
		CostUSD:      cost,
		Provider:     g.provider.Name(),
		ResponseTime: time.Since(start).Milliseconds(),
	}, nil
}

// loadProfile fetches the agent profile, degrading to a neutral
// placeholder so a profile-store outage cannot silence an agent.
func (g *Generator) loadProfile(ctx context.Context, agentID string) *models.AgentProfile {
	profile, err := g.profiles.Get(ctx, agentID)
	if err != nil {
		g.logger.WithError(err).WithField("agent_id", agentID).Warn("Profile unavailable, using neutral persona")
		return &models.AgentProfile{ID: agentID, Name: agentID, Role: "debater"}
	}
	return profile
}

func (g *Generator) loadMemory(ctx context.Context, agentID string) []string {
	lines, err := g.memory.AgentMemory(ctx, agentID, g.window)
	if err != nil {
		g.logger.WithError(err).WithField("agent_id", agentID).Warn("Agent memory unavailable")
		return nil
	}
	return lines
}

func buildSystemPrompt(profile *models.AgentProfile, topic string) string {
	var b strings.Builder

	b.WriteString("You are ")
	b.WriteString(profile.Name)
	if profile.Role != "" {
		b.WriteString(", a ")
		b.WriteString(profile.Role)
	}
	b.WriteString(", participating in a structured debate.\n")

	if profile.Tone != "" {
		b.WriteString("Speak in a ")
		b.WriteString(profile.Tone)
		b.WriteString(" tone.\n")
	}

	if len(profile.Biases) > 0 {
		b.WriteString("Your known leanings: ")
		b.WriteString(strings.Join(profile.Biases, ", "))
		b.WriteString(".\n")
	}

	stance := profile.StanceOn(topic)
	b.WriteString(fmt.Sprintf("On the topic %q you %s the proposition (stance %.2f on a 0-1 scale).\n", topic, stanceDescriptor(stance), stance))

	b.WriteString("Keep each statement under four sentences, substantive, and responsive to prior arguments.")

	return b.String()
}

func buildUserPrompt(req Request, memory []string) string {
	var b strings.Builder

	b.WriteString("Debate topic: ")
	b.WriteString(req.Topic)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("This is turn %d of the debate.\n", req.Turn))

	if len(memory) > 0 {
		b.WriteString("Your recent statements:\n")
		for _, line := range memory {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("Make your next statement.")

	return b.String()
}

func stanceDescriptor(stance float64) string {
	switch {
	case stance < 0.2:
		return "firmly oppose"
	case stance < 0.45:
		return "lean against"
	case stance <= 0.55:
		return "are undecided on"
	case stance < 0.8:
		return "lean in favor of"
	default:
		return "strongly support"
	}
}
