// Package session implements the realtime voice session orchestrator: the
// lifecycle state machine for one call against the remote conversational
// endpoint, including control-event classification, transcript
// accumulation, and incremental persistence.
//
// An Orchestrator owns at most one Session at a time. All session state
// lives in the Orchestrator value; nothing is package-level, so sequential
// sessions (or several Orchestrators) cannot cross-contaminate.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loquihq/loqui/internal/observe"
	"github.com/loquihq/loqui/pkg/audio"
	"github.com/loquihq/loqui/pkg/audio/rtc"
	"github.com/loquihq/loqui/pkg/realtime"
	"github.com/loquihq/loqui/pkg/store"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
)

// String implements [fmt.Stringer].
func (s Status) String() string { return string(s) }

var (
	// ErrSessionActive is returned by Start while a session is connecting
	// or connected.
	ErrSessionActive = errors.New("session: a session is already active")

	// ErrTrackKindRequired is returned by Start when the start config
	// names no track kind.
	ErrTrackKindRequired = errors.New("session: track kind is required")
)

const defaultPersistTimeout = 5 * time.Second

// Config wires an Orchestrator's collaborators. Negotiator, Transport,
// Source, and Store are required.
type Config struct {
	Negotiator realtime.Negotiator
	Transport  rtc.Factory
	Source     audio.CaptureSource
	Store      store.Store

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// DefaultInstructions and DefaultVoice fill in start configs that
	// omit them.
	DefaultInstructions string
	DefaultVoice        string

	// PersistTimeout bounds each background persistence write.
	PersistTimeout time.Duration
}

// StartConfig is the per-session start request.
type StartConfig struct {
	// TrackKind selects the local media kind. Required; the core only
	// supports audio tracks but the field is carried through for the
	// storage layer and diagnostics.
	TrackKind string

	ScenarioLabel      string
	SystemInstructions string
	VoiceID            string
}

// Orchestrator owns the lifecycle of one realtime voice session.
//
// Start, ToggleMute, End, and the getters are safe for concurrent use. The
// control-event handler runs on the transport's delivery goroutine, one
// message at a time, in arrival order.
type Orchestrator struct {
	cfg Config

	mu         sync.Mutex
	status     Status
	id         string
	scenario   string
	startedAt  time.Time
	muted      bool
	userParts  []string
	aiParts    []string
	aiScratch  strings.Builder
	turnIndex  int
	sessCancel context.CancelFunc

	transport rtc.PeerTransport
	track     *rtc.LocalTrack
	sink      *rtc.RemoteSink
	control   rtc.ControlChannel

	persistWG sync.WaitGroup
}

// New creates an idle Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.Negotiator == nil {
		errs = append(errs, errors.New("session: config needs a negotiator"))
	}
	if cfg.Transport == nil {
		errs = append(errs, errors.New("session: config needs a transport factory"))
	}
	if cfg.Source == nil {
		errs = append(errs, errors.New("session: config needs a capture source"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("session: config needs a store"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	return &Orchestrator{cfg: cfg, status: StatusIdle}, nil
}

// Start begins a new session: it creates the session record, mints an
// ephemeral credential, acquires local capture, builds the peer transport
// with its control channel, and performs offer/answer negotiation. On any
// failure every resource acquired so far is released, the status becomes
// ended, and the error is returned.
//
// Cancelling ctx — or calling End while the session is still connecting —
// aborts whichever setup step is in flight; the rollback runs the same way.
func (o *Orchestrator) Start(ctx context.Context, sc StartConfig) error {
	if sc.TrackKind == "" {
		return ErrTrackKindRequired
	}

	o.mu.Lock()
	if o.status == StatusConnecting || o.status == StatusConnected {
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.id = ulid.Make().String()
	o.scenario = sc.ScenarioLabel
	o.status = StatusConnecting
	o.startedAt = time.Now()
	o.muted = false
	o.userParts, o.aiParts = nil, nil
	o.aiScratch.Reset()
	o.turnIndex = 0

	// The session context outlives ctx once setup succeeds; until then it
	// is cancelled by caller cancellation or by End.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.sessCancel = cancel
	id := o.id
	o.mu.Unlock()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	setupStart := time.Now()
	res, err := o.setup(sessCtx, sc)
	if err != nil {
		res.release()
		cancel()
		o.finishFailedStart(id)
		o.cfg.Metrics.RecordSessionError(ctx, "setup")
		return err
	}

	o.mu.Lock()
	if cerr := sessCtx.Err(); cerr != nil {
		// End arrived while the last setup step was completing.
		o.mu.Unlock()
		res.release()
		cancel()
		o.finishFailedStart(id)
		return fmt.Errorf("session: start aborted: %w", cerr)
	}
	o.transport, o.track, o.sink, o.control = res.transport, res.track, res.sink, res.control
	o.status = StatusConnected
	o.mu.Unlock()

	o.cfg.Metrics.NegotiationDuration.Record(ctx, time.Since(setupStart).Seconds())
	o.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session connected",
		"session_id", id,
		"scenario", sc.ScenarioLabel,
		"track_kind", sc.TrackKind)
	return nil
}

// resources is everything one setup pass acquires. A failed or aborted
// Start releases exactly its own resources, so an immediately following
// Start can never have its fresh resources torn down by the old rollback.
type resources struct {
	track     *rtc.LocalTrack
	transport rtc.PeerTransport
	sink      *rtc.RemoteSink
	control   rtc.ControlChannel
}

// release closes whatever subset was acquired, continuing past individual
// failures.
func (r *resources) release() {
	if r == nil {
		return
	}
	if r.control != nil {
		if err := r.control.Close(); err != nil {
			slog.Warn("session: close control channel", "error", err)
		}
	}
	if r.transport != nil {
		if err := r.transport.Close(); err != nil {
			slog.Warn("session: close transport", "error", err)
		}
	}
	if r.track != nil {
		if err := r.track.Stop(); err != nil {
			slog.Warn("session: stop local track", "error", err)
		}
	}
	if r.sink != nil {
		r.sink.Detach()
	}
}

// setup runs the ordered acquisition steps, returning what it acquired so
// far even on failure so the caller can roll back a partial setup.
func (o *Orchestrator) setup(ctx context.Context, sc StartConfig) (*resources, error) {
	instructions := sc.SystemInstructions
	if instructions == "" {
		instructions = o.cfg.DefaultInstructions
	}
	voice := sc.VoiceID
	if voice == "" {
		voice = o.cfg.DefaultVoice
	}

	o.mu.Lock()
	id, startedAt := o.id, o.startedAt
	o.mu.Unlock()

	res := &resources{}

	// 1. Session record, in its initial storage state.
	err := o.cfg.Store.CreateSession(ctx, store.SessionRecord{
		ID:            id,
		ScenarioLabel: sc.ScenarioLabel,
		StartedAt:     startedAt,
	})
	if err != nil {
		return res, fmt.Errorf("session: create record: %w", err)
	}

	// 2. Ephemeral credential from the negotiation endpoint.
	cred, err := o.cfg.Negotiator.MintCredential(ctx, realtime.SessionParams{
		Instructions:  instructions,
		Voice:         voice,
		ScenarioLabel: sc.ScenarioLabel,
	})
	if err != nil {
		return res, fmt.Errorf("session: mint credential: %w", err)
	}

	// 3. Local capture. May block on the user's permission prompt for an
	// unbounded time; ctx is the only way out.
	if err := o.cfg.Source.Start(ctx); err != nil {
		return res, fmt.Errorf("session: acquire capture: %w", err)
	}
	res.track = rtc.NewLocalTrack(o.cfg.Source)

	// 4. Peer transport with the local track attached and the remote sink
	// bound to whatever track the far side adds.
	res.transport, err = o.cfg.Transport(ctx)
	if err != nil {
		return res, fmt.Errorf("session: create transport: %w", err)
	}
	if err := res.transport.AttachLocalTrack(res.track); err != nil {
		return res, fmt.Errorf("session: attach local track: %w", err)
	}
	res.sink = rtc.NewRemoteSink()
	res.transport.OnRemoteTrack(res.sink.Bind)
	res.transport.OnClose(func(cerr error) { o.handleTransportDrop(id, cerr) })

	// 5. Control channel. The handler registers before negotiation so
	// events arriving during setup are buffered, never dropped.
	res.control, err = res.transport.ControlChannel(ctx)
	if err != nil {
		return res, fmt.Errorf("session: open control channel: %w", err)
	}
	res.control.OnMessage(func(data []byte) { o.handleControlMessage(id, data) })

	// 6. Offer/answer under the ephemeral credential.
	offer, err := res.transport.CreateOffer(ctx)
	if err != nil {
		return res, fmt.Errorf("session: create offer: %w", err)
	}
	answer, err := o.cfg.Negotiator.Negotiate(ctx, cred, offer)
	if err != nil {
		return res, fmt.Errorf("session: negotiate: %w", err)
	}
	if err := res.transport.AcceptAnswer(ctx, answer); err != nil {
		return res, fmt.Errorf("session: apply answer: %w", err)
	}
	return res, nil
}

// handleControlMessage classifies one inbound control-channel message for
// the session it was registered under. A malformed message is dropped with
// a debug log; one bad message must not kill the channel.
func (o *Orchestrator) handleControlMessage(sessionID string, data []byte) {
	ev, err := DecodeControlEvent(data)
	if err != nil {
		slog.Debug("session: dropping malformed control message", "error", err)
		return
	}
	ctx := context.Background()
	o.cfg.Metrics.RecordControlEvent(ctx, ev.Kind.String())

	switch ev.Kind {
	case EventSpeechStarted, EventSpeechStopped:
		slog.Debug("speech marker", "type", ev.Type)
	case EventUserTranscript:
		o.appendUserChunk(sessionID, ev.Text)
	case EventAIDelta:
		o.mu.Lock()
		if o.liveLocked(sessionID) {
			o.aiScratch.WriteString(ev.Text)
		}
		o.mu.Unlock()
	case EventAIDone:
		o.flushAIResponse(sessionID)
	case EventSessionNotice:
		slog.Debug("session notice", "type", ev.Type)
	case EventErrorNotice:
		slog.Warn("endpoint reported an error", "message", ev.Err)
	case EventUnknown:
		// Open-ended upstream taxonomy; unknown types fail closed.
	}
}

// liveLocked reports whether sessionID is the current session and is
// accepting transcript events: connecting (the control handler registers
// before negotiation, so early events flush while setup is still running)
// or connected. A straggler from a previous session's channel, or one
// delivered after End, must not mutate a finalized record. Callers hold
// o.mu.
func (o *Orchestrator) liveLocked(sessionID string) bool {
	return (o.status == StatusConnecting || o.status == StatusConnected) && o.id == sessionID
}

// appendUserChunk appends one finalized user utterance and persists it in
// the background.
func (o *Orchestrator) appendUserChunk(sessionID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.mu.Lock()
	if !o.liveLocked(sessionID) {
		o.mu.Unlock()
		return
	}
	o.userParts = append(o.userParts, text)
	idx := o.turnIndex
	o.turnIndex++
	o.mu.Unlock()

	o.persistTurn(sessionID, idx, store.SpeakerUser, text)
}

// flushAIResponse moves the accumulated delta scratch into the AI
// transcript and persists it. The scratch resets so the next response
// starts clean; an empty scratch flushes to nothing.
func (o *Orchestrator) flushAIResponse(sessionID string) {
	o.mu.Lock()
	text := strings.TrimSpace(o.aiScratch.String())
	o.aiScratch.Reset()
	if text == "" || !o.liveLocked(sessionID) {
		o.mu.Unlock()
		return
	}
	o.aiParts = append(o.aiParts, text)
	idx := o.turnIndex
	o.turnIndex++
	o.mu.Unlock()

	o.persistTurn(sessionID, idx, store.SpeakerAI, text)
}

// persistTurn writes one turn and re-derives the full transcripts from the
// turn log, fire-and-forget. Failures are logged and counted; the next
// chunk's reconciliation pass recomputes from the authoritative log, so no
// explicit retry is needed.
func (o *Orchestrator) persistTurn(sessionID string, turnIndex int, speaker store.Speaker, content string) {
	o.persistWG.Add(1)
	go func() {
		defer o.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
		defer cancel()

		if err := o.cfg.Store.UpsertTurn(ctx, sessionID, turnIndex, speaker, content); err != nil {
			slog.Warn("session: persist turn",
				"session_id", sessionID, "turn", turnIndex, "speaker", string(speaker), "error", err)
			o.cfg.Metrics.RecordPersistError(ctx, "upsert_turn")
			return
		}
		if err := o.cfg.Store.SyncTranscripts(ctx, sessionID); err != nil {
			slog.Warn("session: sync transcripts", "session_id", sessionID, "error", err)
			o.cfg.Metrics.RecordPersistError(ctx, "sync_transcripts")
		}
	}()
}

// handleTransportDrop reacts to an unexpected transport shutdown by running
// the normal End path, best-effort. Late callbacks from a previous session
// are ignored.
func (o *Orchestrator) handleTransportDrop(sessionID string, cause error) {
	o.mu.Lock()
	stale := o.status != StatusConnected || o.id != sessionID
	o.mu.Unlock()
	if stale {
		return
	}

	ctx := context.Background()
	slog.Warn("session: transport dropped", "session_id", sessionID, "error", cause)
	o.cfg.Metrics.RecordSessionError(ctx, "transport_drop")
	if err := o.End(ctx); err != nil {
		slog.Warn("session: end after transport drop", "session_id", sessionID, "error", err)
	}
}

// ToggleMute flips the mute state while connected, disabling (not
// removing) the local track so the transport stays negotiated. Outside
// connected it is a no-op. Returns the resulting mute state.
func (o *Orchestrator) ToggleMute() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusConnected || o.track == nil {
		return o.muted
	}
	o.muted = !o.muted
	o.track.SetEnabled(!o.muted)
	return o.muted
}

// End finishes the active session: it waits for in-flight turn writes,
// issues the final persistence call with the actual duration, then tears
// everything down regardless of the persistence outcome. Resource leakage
// is treated as worse than a missed final write. The in-memory transcript
// accumulators stay readable after End so the caller layer can present
// them; the next Start resets them.
//
// Calling End while the session is still connecting aborts the in-flight
// Start; its rollback releases whatever was acquired. End on an idle or
// ended orchestrator is a no-op.
func (o *Orchestrator) End(ctx context.Context) error {
	o.mu.Lock()
	switch o.status {
	case StatusIdle, StatusEnded:
		o.mu.Unlock()
		return nil
	case StatusConnecting:
		cancel := o.sessCancel
		o.status = StatusEnded
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}

	id := o.id
	duration := time.Since(o.startedAt)
	user := strings.Join(o.userParts, "\n")
	ai := strings.Join(o.aiParts, "\n")
	o.status = StatusEnded
	o.mu.Unlock()

	// Let in-flight turn writes land so the final record includes them.
	o.persistWG.Wait()

	if err := o.cfg.Store.FinalizeSession(ctx, id, user, ai, duration); err != nil {
		slog.Warn("session: finalize", "session_id", id, "error", err)
		o.cfg.Metrics.RecordPersistError(ctx, "finalize_session")
	}

	o.teardown()

	o.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	o.cfg.Metrics.SessionDuration.Record(ctx, duration.Seconds())
	slog.Info("session ended", "session_id", id, "duration", duration)
	return nil
}

// teardown detaches the published resources from the orchestrator and
// releases them.
func (o *Orchestrator) teardown() {
	o.mu.Lock()
	res := &resources{
		track:     o.track,
		transport: o.transport,
		sink:      o.sink,
		control:   o.control,
	}
	cancel := o.sessCancel
	o.transport, o.track, o.sink, o.control = nil, nil, nil, nil
	o.sessCancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	res.release()
}

// finishFailedStart settles the state after a rolled-back setup. When a
// successor session has already begun — End during connecting frees the
// slot, so a new Start can race ahead of the old Start's rollback — the
// orchestrator's state belongs to that session and must not be touched.
func (o *Orchestrator) finishFailedStart(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.id != id {
		return
	}
	o.status = StatusEnded
	o.sessCancel = nil
}

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// SessionID returns the active (or most recent) session's id, or "".
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

// Muted reports the current mute state.
func (o *Orchestrator) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// UserTranscript returns the accumulated user transcript, newline-joined.
// It remains readable after End so the caller layer can present it; the
// next Start resets it.
func (o *Orchestrator) UserTranscript() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.userParts, "\n")
}

// AITranscript returns the accumulated AI transcript, newline-joined.
func (o *Orchestrator) AITranscript() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.aiParts, "\n")
}

// RemoteSink returns the sink carrying the remote party's audio, or nil
// outside an active session. The playback activity analyzer reads from it.
func (o *Orchestrator) RemoteSink() *rtc.RemoteSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sink
}

// LocalTrack returns the outgoing track, or nil outside an active session.
// Its tap feeds the capture activity analyzer.
func (o *Orchestrator) LocalTrack() *rtc.LocalTrack {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.track
}
