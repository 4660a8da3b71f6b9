// Package mock provides a scriptable store.Store for tests. It keeps real
// data semantics by delegating to an in-memory store while recording every
// call and supporting per-method error injection.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/loquihq/loqui/pkg/store"
)

var _ store.Store = (*Store)(nil)

// TurnCall records one UpsertTurn invocation.
type TurnCall struct {
	SessionID string
	TurnIndex int
	Speaker   store.Speaker
	Content   string
}

// FinalizeCall records one FinalizeSession invocation.
type FinalizeCall struct {
	SessionID      string
	UserTranscript string
	AITranscript   string
	Duration       time.Duration
}

// Store wraps a store.MemStore with call recording and injectable errors.
// The zero value is not usable; create it with New.
type Store struct {
	// Injected errors. When non-nil, the corresponding method returns the
	// error without touching the underlying store.
	CreateErr   error
	UpsertErr   error
	SyncErr     error
	FinalizeErr error

	mem *store.MemStore

	mu        sync.Mutex
	creates   []store.SessionRecord
	turns     []TurnCall
	syncs     []string
	finalizes []FinalizeCall
}

// New creates an empty mock store.
func New() *Store {
	return &Store{mem: store.NewMemStore()}
}

// CreateSession implements [store.Store].
func (s *Store) CreateSession(ctx context.Context, rec store.SessionRecord) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	s.creates = append(s.creates, rec)
	s.mu.Unlock()
	return s.mem.CreateSession(ctx, rec)
}

// UpsertTurn implements [store.Store].
func (s *Store) UpsertTurn(ctx context.Context, sessionID string, turnIndex int, speaker store.Speaker, content string) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.mu.Lock()
	s.turns = append(s.turns, TurnCall{SessionID: sessionID, TurnIndex: turnIndex, Speaker: speaker, Content: content})
	s.mu.Unlock()
	return s.mem.UpsertTurn(ctx, sessionID, turnIndex, speaker, content)
}

// RecomputeTranscripts implements [store.Store].
func (s *Store) RecomputeTranscripts(ctx context.Context, sessionID string) (string, string, error) {
	return s.mem.RecomputeTranscripts(ctx, sessionID)
}

// SyncTranscripts implements [store.Store].
func (s *Store) SyncTranscripts(ctx context.Context, sessionID string) error {
	if s.SyncErr != nil {
		return s.SyncErr
	}
	s.mu.Lock()
	s.syncs = append(s.syncs, sessionID)
	s.mu.Unlock()
	return s.mem.SyncTranscripts(ctx, sessionID)
}

// Session implements [store.Store].
func (s *Store) Session(ctx context.Context, sessionID string) (store.SessionRecord, error) {
	return s.mem.Session(ctx, sessionID)
}

// FinalizeSession implements [store.Store].
func (s *Store) FinalizeSession(ctx context.Context, sessionID string, userTranscript, aiTranscript string, duration time.Duration) error {
	if s.FinalizeErr != nil {
		return s.FinalizeErr
	}
	s.mu.Lock()
	s.finalizes = append(s.finalizes, FinalizeCall{
		SessionID:      sessionID,
		UserTranscript: userTranscript,
		AITranscript:   aiTranscript,
		Duration:       duration,
	})
	s.mu.Unlock()
	return s.mem.FinalizeSession(ctx, sessionID, userTranscript, aiTranscript, duration)
}

// Close implements [store.Store].
func (s *Store) Close() {}

// Creates returns the recorded CreateSession calls.
func (s *Store) Creates() []store.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.SessionRecord, len(s.creates))
	copy(out, s.creates)
	return out
}

// TurnCalls returns the recorded UpsertTurn calls in invocation order.
func (s *Store) TurnCalls() []TurnCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TurnCall, len(s.turns))
	copy(out, s.turns)
	return out
}

// SyncCalls returns the session IDs passed to SyncTranscripts.
func (s *Store) SyncCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.syncs))
	copy(out, s.syncs)
	return out
}

// FinalizeCalls returns the recorded FinalizeSession calls.
func (s *Store) FinalizeCalls() []FinalizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FinalizeCall, len(s.finalizes))
	copy(out, s.finalizes)
	return out
}
