package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loquihq/loqui/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store implements [store.Store] on a PostgreSQL connection pool. All
// operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn, verifies it
// with a ping, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Ping verifies database connectivity. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSession implements [store.Store].
func (s *Store) CreateSession(ctx context.Context, rec store.SessionRecord) error {
	status := rec.Status
	if status == "" {
		status = store.StatusActive
	}
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, scenario_label, status, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.ScenarioLabel, status, startedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create session: %w", err)
	}
	return nil
}

// UpsertTurn implements [store.Store].
func (s *Store) UpsertTurn(ctx context.Context, sessionID string, turnIndex int, speaker store.Speaker, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_turns (session_id, turn_index, speaker, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, turn_index, speaker)
		DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		sessionID, turnIndex, string(speaker), content)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return store.ErrNotFound
		}
		return fmt.Errorf("postgres store: upsert turn: %w", err)
	}
	return nil
}

// RecomputeTranscripts implements [store.Store]. The aggregation happens in
// the database so the result is consistent with the log regardless of the
// order individual turn writes landed in.
func (s *Store) RecomputeTranscripts(ctx context.Context, sessionID string) (string, string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT speaker, string_agg(content, E'\n' ORDER BY turn_index)
		FROM session_turns
		WHERE session_id = $1
		GROUP BY speaker`,
		sessionID)
	if err != nil {
		return "", "", fmt.Errorf("postgres store: recompute transcripts: %w", err)
	}
	defer rows.Close()

	var user, ai string
	for rows.Next() {
		var speaker, transcript string
		if err := rows.Scan(&speaker, &transcript); err != nil {
			return "", "", fmt.Errorf("postgres store: scan transcript row: %w", err)
		}
		switch store.Speaker(speaker) {
		case store.SpeakerUser:
			user = transcript
		case store.SpeakerAI:
			ai = transcript
		}
	}
	if err := rows.Err(); err != nil {
		return "", "", fmt.Errorf("postgres store: recompute transcripts: %w", err)
	}
	return user, ai, nil
}

// SyncTranscripts implements [store.Store].
func (s *Store) SyncTranscripts(ctx context.Context, sessionID string) error {
	user, ai, err := s.RecomputeTranscripts(ctx, sessionID)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET user_transcript = $2, ai_transcript = $3
		WHERE id = $1`,
		sessionID, user, ai)
	if err != nil {
		return fmt.Errorf("postgres store: sync transcripts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Session implements [store.Store].
func (s *Store) Session(ctx context.Context, sessionID string) (store.SessionRecord, error) {
	var (
		rec        store.SessionRecord
		endedAt    sql.NullTime
		durationMS int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, scenario_label, status, started_at, ended_at, duration_ms,
		       user_transcript, ai_transcript
		FROM sessions
		WHERE id = $1`,
		sessionID).Scan(
		&rec.ID, &rec.ScenarioLabel, &rec.Status, &rec.StartedAt, &endedAt,
		&durationMS, &rec.UserTranscript, &rec.AITranscript)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.SessionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.SessionRecord{}, fmt.Errorf("postgres store: load session: %w", err)
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

// FinalizeSession implements [store.Store].
func (s *Store) FinalizeSession(ctx context.Context, sessionID string, userTranscript, aiTranscript string, duration time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET status = $2, user_transcript = $3, ai_transcript = $4,
		    duration_ms = $5, ended_at = now()
		WHERE id = $1`,
		sessionID, store.StatusCompleted, userTranscript, aiTranscript, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("postgres store: finalize session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Close implements [store.Store].
func (s *Store) Close() {
	s.pool.Close()
}
