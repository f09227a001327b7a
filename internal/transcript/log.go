// Package transcript persists debate messages to Redis Streams: one
// stream per session for the full transcript, one per agent for the
// agent's own speaking memory.
package transcript

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/config"
	"github.com/debatelab/agora/internal/models"
)

// Entry is a raw stream record.
type Entry struct {
	ID     string
	Fields map[string]string
}

// AgentID returns the agent that authored the entry, if recorded.
func (e Entry) AgentID() string {
	return e.Fields["agent_id"]
}

// Log writes and reads debate streams.
type Log struct {
	client           redis.UniversalClient
	transcriptMaxLen int64
	memoryMaxLen     int64
	logger           *logrus.Logger
}

// NewLog creates a stream log on an existing Redis client.
func NewLog(client redis.UniversalClient, cfg config.DebateConfig, logger *logrus.Logger) *Log {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.TranscriptMaxLen <= 0 {
		cfg.TranscriptMaxLen = 512
	}
	if cfg.MemoryMaxLen <= 0 {
		cfg.MemoryMaxLen = 128
	}
	return &Log{
		client:           client,
		transcriptMaxLen: cfg.TranscriptMaxLen,
		memoryMaxLen:     cfg.MemoryMaxLen,
		logger:           logger,
	}
}

// SessionStream returns the transcript stream key for a session.
func SessionStream(sessionID string) string {
	return fmt.Sprintf("debate:%s:transcript", sessionID)
}

// AgentMemoryStream returns the memory stream key for an agent.
func AgentMemoryStream(agentID string) string {
	return fmt.Sprintf("agent:%s:memory", agentID)
}

// Append adds fields to a stream, trimming it to maxLen approximately.
func (l *Log) Append(ctx context.Context, stream string, fields map[string]interface{}, maxLen int64) (string, error) {
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	return id, nil
}

// AppendMessage persists a debate message to its session transcript.
func (l *Log) AppendMessage(ctx context.Context, msg *models.DebateMessage) (string, error) {
	fields := map[string]interface{}{
		"message_id":  msg.ID,
		"session_id":  msg.SessionID,
		"agent_id":    msg.AgentID,
		"agent_name":  msg.AgentName,
		"topic":       msg.Topic,
		"content":     msg.Content,
		"turn":        strconv.Itoa(msg.Turn),
		"cache_hit":   strconv.FormatBool(msg.CacheHit),
		"similarity":  strconv.FormatFloat(msg.Similarity, 'f', -1, 64),
		"tokens_used": strconv.Itoa(msg.TokensUsed),
		"cost_usd":    strconv.FormatFloat(msg.CostUSD, 'f', -1, 64),
		"created_at":  msg.CreatedAt.Format(time.RFC3339Nano),
	}

	id, err := l.Append(ctx, SessionStream(msg.SessionID), fields, l.transcriptMaxLen)
	if err != nil {
		return "", err
	}

	l.logger.WithFields(logrus.Fields{
		"session": msg.SessionID,
		"agent":   msg.AgentID,
		"turn":    msg.Turn,
	}).Debug("Message appended to transcript")

	return id, nil
}

// AppendMemory records what an agent said into its own memory stream.
func (l *Log) AppendMemory(ctx context.Context, agentID string, msg *models.DebateMessage) (string, error) {
	fields := map[string]interface{}{
		"session_id": msg.SessionID,
		"topic":      msg.Topic,
		"content":    msg.Content,
		"turn":       strconv.Itoa(msg.Turn),
		"created_at": msg.CreatedAt.Format(time.RFC3339Nano),
	}
	return l.Append(ctx, AgentMemoryStream(agentID), fields, l.memoryMaxLen)
}

// ReadRecent returns the newest count entries of a stream in
// chronological order. A missing stream reads as empty.
func (l *Log) ReadRecent(ctx context.Context, stream string, count int64) ([]Entry, error) {
	if count <= 0 {
		return nil, nil
	}

	msgs, err := l.client.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", stream, err)
	}

	entries := make([]Entry, len(msgs))
	for i, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprint(v)
			}
		}
		// XRevRange yields newest first; flip to chronological.
		entries[len(msgs)-1-i] = Entry{ID: m.ID, Fields: fields}
	}

	return entries, nil
}

// RecentMessages returns the newest count transcript messages of a
// session in chronological order. Malformed entries are skipped.
func (l *Log) RecentMessages(ctx context.Context, sessionID string, count int64) ([]models.DebateMessage, error) {
	entries, err := l.ReadRecent(ctx, SessionStream(sessionID), count)
	if err != nil {
		return nil, err
	}

	messages := make([]models.DebateMessage, 0, len(entries))
	for _, e := range entries {
		msg, err := entryToMessage(e)
		if err != nil {
			l.logger.WithError(err).WithField("entry", e.ID).Warn("Skipping malformed transcript entry")
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func entryToMessage(e Entry) (models.DebateMessage, error) {
	if e.Fields["content"] == "" {
		return models.DebateMessage{}, fmt.Errorf("entry %s has no content", e.ID)
	}

	turn, _ := strconv.Atoi(e.Fields["turn"])
	cacheHit, _ := strconv.ParseBool(e.Fields["cache_hit"])
	similarity, _ := strconv.ParseFloat(e.Fields["similarity"], 64)
	tokensUsed, _ := strconv.Atoi(e.Fields["tokens_used"])
	costUSD, _ := strconv.ParseFloat(e.Fields["cost_usd"], 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, e.Fields["created_at"])

	return models.DebateMessage{
		ID:         e.Fields["message_id"],
		SessionID:  e.Fields["session_id"],
		AgentID:    e.Fields["agent_id"],
		AgentName:  e.Fields["agent_name"],
		Topic:      e.Fields["topic"],
		Content:    e.Fields["content"],
		Turn:       turn,
		CacheHit:   cacheHit,
		Similarity: similarity,
		TokensUsed: tokensUsed,
		CostUSD:    costUSD,
		CreatedAt:  createdAt,
	}, nil
}

// AgentMemory returns the newest count memory lines for an agent in
// chronological order, formatted for prompt building.
func (l *Log) AgentMemory(ctx context.Context, agentID string, count int64) ([]string, error) {
	entries, err := l.ReadRecent(ctx, AgentMemoryStream(agentID), count)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if content := e.Fields["content"]; content != "" {
			lines = append(lines, content)
		}
	}
	return lines, nil
}
