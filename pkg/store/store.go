// Package store defines the persistence contract for voice sessions: a
// session record plus an append/upsert log of conversation turns from which
// full transcripts are recomputed.
//
// All write operations are idempotent. Turn writes are keyed on
// (session, turn index, speaker), so retrying or replaying a write never
// duplicates content, and transcripts are always derived from the turn log
// rather than accumulated incrementally.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an operation references a session that does
// not exist.
var ErrNotFound = errors.New("store: session not found")

// Speaker identifies which side of the conversation produced a turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "assistant"
)

// IsValid reports whether s is a known speaker value.
func (s Speaker) IsValid() bool {
	return s == SpeakerUser || s == SpeakerAI
}

// Session lifecycle states as stored.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// SessionRecord is the persisted view of one voice session.
type SessionRecord struct {
	ID            string
	ScenarioLabel string
	Status        string
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration

	// UserTranscript and AITranscript are the newline-joined turn
	// contents, ordered by turn index. They are derived state, refreshed
	// by SyncTranscripts and fixed at finalisation.
	UserTranscript string
	AITranscript   string
}

// Turn is one entry in a session's conversation log.
type Turn struct {
	SessionID string
	TurnIndex int
	Speaker   Speaker
	Content   string
}

// Store persists sessions and their turn logs.
//
// Implementations must be safe for concurrent use; the session core issues
// turn writes from short-lived goroutines that may complete out of order.
type Store interface {
	// CreateSession records a new session. Creating a session that
	// already exists is a no-op.
	CreateSession(ctx context.Context, rec SessionRecord) error

	// UpsertTurn writes one turn, replacing any previous content for the
	// same (session, turn index, speaker) key. Returns ErrNotFound for an
	// unknown session.
	UpsertTurn(ctx context.Context, sessionID string, turnIndex int, speaker Speaker, content string) error

	// RecomputeTranscripts rebuilds both transcripts from the turn log,
	// joining contents with a newline in turn-index order. A session with
	// no turns (including an unknown session) yields empty transcripts.
	RecomputeTranscripts(ctx context.Context, sessionID string) (userTranscript, aiTranscript string, err error)

	// SyncTranscripts recomputes the transcripts and writes them onto the
	// session record. Returns ErrNotFound for an unknown session.
	SyncTranscripts(ctx context.Context, sessionID string) error

	// Session returns the stored record, or ErrNotFound.
	Session(ctx context.Context, sessionID string) (SessionRecord, error)

	// FinalizeSession marks the session completed with its final
	// transcripts and wall-clock duration. Finalising twice overwrites
	// with the same values and is harmless.
	FinalizeSession(ctx context.Context, sessionID string, userTranscript, aiTranscript string, duration time.Duration) error

	// Close releases any underlying resources.
	Close()
}
