package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debatelab/agora/internal/models"
)

type fakeExecer struct {
	sql  []string
	args [][]any
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return f.tag, nil
}

func newTestRepository(db *fakeExecer) *Repository {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Repository{db: db, log: log}
}

func sampleSnapshot() *models.SessionSnapshot {
	return &models.SessionSnapshot{
		ID:           "d1a7e9c2",
		Topic:        "Should cities ban private cars",
		Participants: []string{"optimist", "skeptic"},
		Rounds:       3,
		Status:       models.SessionRunning,
		StartedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateTableStatement(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("CREATE TABLE")}
	repo := newTestRepository(db)

	require.NoError(t, repo.CreateTable(context.Background()))
	require.Len(t, db.sql, 1)

	stmt := db.sql[0]
	assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS debate_sessions")
	assert.Contains(t, stmt, "idx_debate_sessions_status")
	assert.Contains(t, stmt, "idx_debate_sessions_started_at")
	assert.Contains(t, stmt, "idx_debate_sessions_topic")
}

func TestSessionStartedInsertsSnapshot(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := newTestRepository(db)
	snap := sampleSnapshot()

	require.NoError(t, repo.SessionStarted(context.Background(), snap))
	require.Len(t, db.sql, 1)

	assert.Contains(t, db.sql[0], "INSERT INTO debate_sessions")
	args := db.args[0]
	require.Len(t, args, 6)
	assert.Equal(t, "d1a7e9c2", args[0])
	assert.Equal(t, "Should cities ban private cars", args[1])
	assert.Equal(t, []string{"optimist", "skeptic"}, args[2])
	assert.Equal(t, 3, args[3])
	assert.Equal(t, "running", args[4])
	assert.Equal(t, snap.StartedAt, args[5])
}

func TestSessionFinishedUpdatesOutcome(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := newTestRepository(db)

	snap := sampleSnapshot()
	snap.Status = models.SessionCompleted
	snap.AttemptedTurns = 6
	snap.CompletedTurns = 6
	snap.MessageCount = 6
	snap.FactCheckCount = 2
	snap.TotalTokensUsed = 1840
	snap.TotalCostUSD = 0.0037
	snap.FinishedAt = snap.StartedAt.Add(90 * time.Second)

	require.NoError(t, repo.SessionFinished(context.Background(), snap))
	require.Len(t, db.sql, 1)

	assert.Contains(t, db.sql[0], "UPDATE debate_sessions")
	args := db.args[0]
	require.Len(t, args, 9)
	assert.Equal(t, "completed", args[0])
	assert.Equal(t, 6, args[1])
	assert.Equal(t, 6, args[2])
	assert.Equal(t, 6, args[3])
	assert.Equal(t, 2, args[4])
	assert.Equal(t, 1840, args[5])
	assert.Equal(t, 0.0037, args[6])
	assert.Equal(t, snap.FinishedAt, args[7])
	assert.Equal(t, "d1a7e9c2", args[8])
}

func TestSessionFinishedMissingRow(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("UPDATE 0")}
	repo := newTestRepository(db)

	err := repo.SessionFinished(context.Background(), sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExecFailuresAreWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	db := &fakeExecer{err: boom}
	repo := newTestRepository(db)
	ctx := context.Background()

	for name, op := range map[string]func() error{
		"create table":     func() error { return repo.CreateTable(ctx) },
		"session started":  func() error { return repo.SessionStarted(ctx, sampleSnapshot()) },
		"session finished": func() error { return repo.SessionFinished(ctx, sampleSnapshot()) },
	} {
		err := op()
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, boom), name)
	}
}

func TestStatementsUsePositionalPlaceholders(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := newTestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SessionStarted(ctx, sampleSnapshot()))
	require.NoError(t, repo.SessionFinished(ctx, sampleSnapshot()))

	for _, stmt := range db.sql {
		assert.True(t, strings.Contains(stmt, "$1"), "statement should be parameterized: %s", stmt)
		assert.NotContains(t, stmt, "%s")
	}
}
