// Package archive persists finished debate sessions to PostgreSQL.
//
// The archive is optional infrastructure. When no DATABASE_URL is
// configured the scheduler runs without one, and every write failure is
// reported to the caller rather than retried: losing an archive row
// never blocks or aborts a live debate.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/models"
)

// execer is the slice of pgxpool.Pool the repository needs. Tests
// substitute a fake to inspect statements without a live database.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository stores session lifecycle records in the debate_sessions
// table. It implements the scheduler's SessionArchive.
type Repository struct {
	db  execer
	log *logrus.Logger
}

// New creates a repository on top of an established pool.
func New(pool *pgxpool.Pool, log *logrus.Logger) *Repository {
	if log == nil {
		log = logrus.New()
	}
	return &Repository{
		db:  pool,
		log: log,
	}
}

// Connect opens a pgx pool against databaseURL and verifies it with a
// bounded ping. The pool is closed again if the ping fails, so callers
// either get a working pool or nothing.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return pool, nil
}

// CreateTable creates the debate_sessions table if it doesn't exist.
func (r *Repository) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS debate_sessions (
			id VARCHAR(255) PRIMARY KEY,
			topic TEXT NOT NULL,
			participants TEXT[] NOT NULL,
			rounds INT NOT NULL DEFAULT 0,
			status VARCHAR(50) NOT NULL DEFAULT 'pending',
			attempted_turns INT NOT NULL DEFAULT 0,
			completed_turns INT NOT NULL DEFAULT 0,
			message_count INT NOT NULL DEFAULT 0,
			fact_check_count INT NOT NULL DEFAULT 0,
			tokens_used INT NOT NULL DEFAULT 0,
			cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			started_at TIMESTAMP WITH TIME ZONE,
			finished_at TIMESTAMP WITH TIME ZONE
		);

		CREATE INDEX IF NOT EXISTS idx_debate_sessions_status ON debate_sessions(status);
		CREATE INDEX IF NOT EXISTS idx_debate_sessions_started_at ON debate_sessions(started_at);
		CREATE INDEX IF NOT EXISTS idx_debate_sessions_topic ON debate_sessions(topic);
	`

	_, err := r.db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create debate_sessions table: %w", err)
	}

	r.log.Info("Debate sessions table created/verified")
	return nil
}

// SessionStarted records a newly launched session.
func (r *Repository) SessionStarted(ctx context.Context, snap *models.SessionSnapshot) error {
	query := `
		INSERT INTO debate_sessions (
			id, topic, participants, rounds, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		snap.ID,
		snap.Topic,
		snap.Participants,
		snap.Rounds,
		string(snap.Status),
		snap.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert debate session: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"session_id":   snap.ID,
		"topic":        snap.Topic,
		"participants": len(snap.Participants),
	}).Debug("Debate session archived")

	return nil
}

// SessionFinished writes the terminal counters of a session that has
// left the scheduler.
func (r *Repository) SessionFinished(ctx context.Context, snap *models.SessionSnapshot) error {
	query := `
		UPDATE debate_sessions
		SET status = $1,
			attempted_turns = $2,
			completed_turns = $3,
			message_count = $4,
			fact_check_count = $5,
			tokens_used = $6,
			cost_usd = $7,
			finished_at = $8
		WHERE id = $9
	`

	tag, err := r.db.Exec(ctx, query,
		string(snap.Status),
		snap.AttemptedTurns,
		snap.CompletedTurns,
		snap.MessageCount,
		snap.FactCheckCount,
		snap.TotalTokensUsed,
		snap.TotalCostUSD,
		snap.FinishedAt,
		snap.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update debate session outcome: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("debate session not found: %s", snap.ID)
	}

	r.log.WithFields(logrus.Fields{
		"session_id":      snap.ID,
		"status":          snap.Status,
		"completed_turns": snap.CompletedTurns,
		"cost_usd":        snap.TotalCostUSD,
	}).Debug("Debate session outcome archived")

	return nil
}
