package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loquihq/loqui/pkg/store"
)

func newSession(t *testing.T, s store.Store, id string) {
	t.Helper()
	err := s.CreateSession(context.Background(), store.SessionRecord{
		ID:            id,
		ScenarioLabel: "difficult customer",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func TestMemStore_RecomputeJoinsTurnsInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	newSession(t, s, "sess-1")

	// Writes arrive out of order; the transcript must still follow the
	// turn index.
	if err := s.UpsertTurn(ctx, "sess-1", 1, store.SpeakerUser, "tudo bem?"); err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}
	if err := s.UpsertTurn(ctx, "sess-1", 0, store.SpeakerUser, "oi"); err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}
	if err := s.UpsertTurn(ctx, "sess-1", 0, store.SpeakerAI, "Olá! Como posso ajudar?"); err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}

	user, ai, err := s.RecomputeTranscripts(ctx, "sess-1")
	if err != nil {
		t.Fatalf("RecomputeTranscripts: %v", err)
	}
	if want := "oi\ntudo bem?"; user != want {
		t.Errorf("user transcript = %q, want %q", user, want)
	}
	if want := "Olá! Como posso ajudar?"; ai != want {
		t.Errorf("ai transcript = %q, want %q", ai, want)
	}
}

func TestMemStore_UpsertReplacesSameKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	newSession(t, s, "sess-1")

	if err := s.UpsertTurn(ctx, "sess-1", 0, store.SpeakerUser, "partial"); err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}
	if err := s.UpsertTurn(ctx, "sess-1", 0, store.SpeakerUser, "final"); err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}

	user, _, err := s.RecomputeTranscripts(ctx, "sess-1")
	if err != nil {
		t.Fatalf("RecomputeTranscripts: %v", err)
	}
	if user != "final" {
		t.Errorf("user transcript = %q, want replacement to win", user)
	}
}

func TestMemStore_SyncWritesOntoRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	newSession(t, s, "sess-1")

	if err := s.UpsertTurn(ctx, "sess-1", 0, store.SpeakerAI, "hello"); err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}
	if err := s.SyncTranscripts(ctx, "sess-1"); err != nil {
		t.Fatalf("SyncTranscripts: %v", err)
	}

	rec, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if rec.AITranscript != "hello" {
		t.Errorf("AITranscript = %q, want %q", rec.AITranscript, "hello")
	}
	if rec.Status != store.StatusActive {
		t.Errorf("Status = %q, want %q", rec.Status, store.StatusActive)
	}
}

func TestMemStore_Finalize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	newSession(t, s, "sess-1")

	if err := s.FinalizeSession(ctx, "sess-1", "u", "a", 12*time.Second); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}

	rec, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if rec.Status != store.StatusCompleted {
		t.Errorf("Status = %q, want %q", rec.Status, store.StatusCompleted)
	}
	if rec.Duration != 12*time.Second {
		t.Errorf("Duration = %v, want 12s", rec.Duration)
	}
	if rec.EndedAt.IsZero() {
		t.Error("EndedAt should be set")
	}
}

func TestMemStore_UnknownSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()

	if err := s.UpsertTurn(ctx, "missing", 0, store.SpeakerUser, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpsertTurn err = %v, want ErrNotFound", err)
	}
	if user, ai, err := s.RecomputeTranscripts(ctx, "missing"); err != nil || user != "" || ai != "" {
		t.Errorf("RecomputeTranscripts = (%q, %q, %v), want empty transcripts", user, ai, err)
	}
	if err := s.SyncTranscripts(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SyncTranscripts err = %v, want ErrNotFound", err)
	}
	if err := s.FinalizeSession(ctx, "missing", "", "", 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FinalizeSession err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_CreateIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	newSession(t, s, "sess-1")

	if err := s.UpsertTurn(ctx, "sess-1", 0, store.SpeakerUser, "kept"); err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}
	// A second create must not wipe the turn log.
	newSession(t, s, "sess-1")

	user, _, err := s.RecomputeTranscripts(ctx, "sess-1")
	if err != nil {
		t.Fatalf("RecomputeTranscripts: %v", err)
	}
	if user != "kept" {
		t.Errorf("user transcript = %q, want turns to survive re-create", user)
	}
}
