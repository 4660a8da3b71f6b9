// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store] on a single [pgxpool.Pool].
//
// Sessions live in a `sessions` table; conversation turns live in a
// `session_turns` log keyed on (session_id, turn_index, speaker), so retried
// or replayed writes land on the same row. Transcripts are never accumulated
// in place: they are recomputed from the log with string_agg and written back
// whole.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT         PRIMARY KEY,
    scenario_label  TEXT         NOT NULL DEFAULT '',
    status          TEXT         NOT NULL DEFAULT 'active',
    started_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at        TIMESTAMPTZ,
    duration_ms     BIGINT       NOT NULL DEFAULT 0,
    user_transcript TEXT         NOT NULL DEFAULT '',
    ai_transcript   TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_status
    ON sessions (status);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at
    ON sessions (started_at);
`

const ddlSessionTurns = `
CREATE TABLE IF NOT EXISTS session_turns (
    session_id  TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    turn_index  INTEGER      NOT NULL,
    speaker     TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, turn_index, speaker)
);

CREATE INDEX IF NOT EXISTS idx_session_turns_session
    ON session_turns (session_id);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlSessions, ddlSessionTurns} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
