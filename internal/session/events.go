package session

import (
	"encoding/json"
	"fmt"
)

// EventKind classifies a control-channel event. The set is closed: wire
// types outside it decode to [EventUnknown] and are ignored, never fatal,
// so new upstream event types fail closed.
type EventKind int

const (
	// EventUnknown is any wire type the core does not consume.
	EventUnknown EventKind = iota

	// EventSpeechStarted and EventSpeechStopped mark the endpoint's voice
	// activity detection on the user's audio. Informational only.
	EventSpeechStarted
	EventSpeechStopped

	// EventUserTranscript carries one finalized user utterance.
	EventUserTranscript

	// EventAIDelta carries an incremental piece of the AI's spoken
	// response transcript.
	EventAIDelta

	// EventAIDone marks the end of one AI response.
	EventAIDone

	// EventSessionNotice covers session lifecycle and rate-limit notices.
	EventSessionNotice

	// EventErrorNotice is an error reported by the endpoint. Diagnostic
	// only; it never transitions session state by itself.
	EventErrorNotice
)

// String returns the kind's name for logs and metrics.
func (k EventKind) String() string {
	switch k {
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechStopped:
		return "speech_stopped"
	case EventUserTranscript:
		return "user_transcript"
	case EventAIDelta:
		return "ai_delta"
	case EventAIDone:
		return "ai_done"
	case EventSessionNotice:
		return "session_notice"
	case EventErrorNotice:
		return "error_notice"
	default:
		return "unknown"
	}
}

// ControlEvent is one decoded control-channel message.
type ControlEvent struct {
	Kind EventKind

	// Type is the raw wire discriminator, kept for diagnostics.
	Type string

	// Text is the transcript payload: the finalized chunk for
	// [EventUserTranscript], the delta for [EventAIDelta], the full
	// response transcript (when present) for [EventAIDone].
	Text string

	// Err is the endpoint's error message for [EventErrorNotice].
	Err string

	// Payload is the raw message for notice kinds.
	Payload json.RawMessage
}

// wireEvent is the envelope shape shared by all control messages. Only the
// fields the core consumes are decoded; everything else rides along in the
// raw payload.
type wireEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Delta      string `json:"delta"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeControlEvent parses one control-channel message. It returns an error
// only for malformed JSON or a missing type discriminator; unrecognised
// types decode successfully as [EventUnknown].
func DecodeControlEvent(data []byte) (ControlEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return ControlEvent{}, fmt.Errorf("session: decode control event: %w", err)
	}
	if w.Type == "" {
		return ControlEvent{}, fmt.Errorf("session: control event has no type discriminator")
	}

	ev := ControlEvent{Type: w.Type}
	switch w.Type {
	case "input_audio_buffer.speech_started":
		ev.Kind = EventSpeechStarted
	case "input_audio_buffer.speech_stopped":
		ev.Kind = EventSpeechStopped
	case "conversation.item.input_audio_transcription.completed":
		ev.Kind = EventUserTranscript
		ev.Text = w.Transcript
	case "response.audio_transcript.delta":
		ev.Kind = EventAIDelta
		ev.Text = w.Delta
	case "response.audio_transcript.done":
		ev.Kind = EventAIDone
		ev.Text = w.Transcript
	case "session.created", "session.updated", "rate_limits.updated":
		ev.Kind = EventSessionNotice
		ev.Payload = json.RawMessage(data)
	case "error":
		ev.Kind = EventErrorNotice
		ev.Payload = json.RawMessage(data)
		if w.Error != nil {
			ev.Err = w.Error.Message
		}
	default:
		ev.Kind = EventUnknown
	}
	return ev, nil
}
