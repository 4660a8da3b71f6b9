package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store. It backs tests and development setups
// where no database DSN is configured; data does not survive a restart.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
	turns    map[string]map[turnKey]string
}

type turnKey struct {
	index   int
	speaker Speaker
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]SessionRecord),
		turns:    make(map[string]map[turnKey]string),
	}
}

// CreateSession implements [Store].
func (m *MemStore) CreateSession(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[rec.ID]; ok {
		return nil
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	m.sessions[rec.ID] = rec
	m.turns[rec.ID] = make(map[turnKey]string)
	return nil
}

// UpsertTurn implements [Store].
func (m *MemStore) UpsertTurn(_ context.Context, sessionID string, turnIndex int, speaker Speaker, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.turns[sessionID]
	if !ok {
		return ErrNotFound
	}
	log[turnKey{index: turnIndex, speaker: speaker}] = content
	return nil
}

// RecomputeTranscripts implements [Store].
func (m *MemStore) RecomputeTranscripts(_ context.Context, sessionID string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputeLocked(sessionID)
}

func (m *MemStore) recomputeLocked(sessionID string) (string, string, error) {
	log := m.turns[sessionID]

	keys := make([]turnKey, 0, len(log))
	for k := range log {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].index < keys[j].index })

	var user, ai []string
	for _, k := range keys {
		switch k.speaker {
		case SpeakerUser:
			user = append(user, log[k])
		case SpeakerAI:
			ai = append(ai, log[k])
		}
	}
	return strings.Join(user, "\n"), strings.Join(ai, "\n"), nil
}

// SyncTranscripts implements [Store].
func (m *MemStore) SyncTranscripts(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	user, ai, err := m.recomputeLocked(sessionID)
	if err != nil {
		return err
	}
	rec.UserTranscript = user
	rec.AITranscript = ai
	m.sessions[sessionID] = rec
	return nil
}

// Session implements [Store].
func (m *MemStore) Session(_ context.Context, sessionID string) (SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

// FinalizeSession implements [Store].
func (m *MemStore) FinalizeSession(_ context.Context, sessionID string, userTranscript, aiTranscript string, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusCompleted
	rec.UserTranscript = userTranscript
	rec.AITranscript = aiTranscript
	rec.Duration = duration
	rec.EndedAt = time.Now()
	m.sessions[sessionID] = rec
	return nil
}

// Close implements [Store]. It is a no-op for the in-memory store.
func (m *MemStore) Close() {}
