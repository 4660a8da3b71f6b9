package session

import "testing"

func TestDecodeControlEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     string
		wantKind EventKind
		wantText string
		wantErr  string
	}{
		{
			name:     "speech started",
			data:     `{"type":"input_audio_buffer.speech_started"}`,
			wantKind: EventSpeechStarted,
		},
		{
			name:     "speech stopped",
			data:     `{"type":"input_audio_buffer.speech_stopped"}`,
			wantKind: EventSpeechStopped,
		},
		{
			name:     "user transcript",
			data:     `{"type":"conversation.item.input_audio_transcription.completed","transcript":"oi"}`,
			wantKind: EventUserTranscript,
			wantText: "oi",
		},
		{
			name:     "ai delta",
			data:     `{"type":"response.audio_transcript.delta","delta":"Olá"}`,
			wantKind: EventAIDelta,
			wantText: "Olá",
		},
		{
			name:     "ai done carries full transcript",
			data:     `{"type":"response.audio_transcript.done","transcript":"Olá! Como posso ajudar?"}`,
			wantKind: EventAIDone,
			wantText: "Olá! Como posso ajudar?",
		},
		{
			name:     "session created notice",
			data:     `{"type":"session.created","session":{"id":"abc"}}`,
			wantKind: EventSessionNotice,
		},
		{
			name:     "rate limits notice",
			data:     `{"type":"rate_limits.updated","rate_limits":[]}`,
			wantKind: EventSessionNotice,
		},
		{
			name:     "error notice",
			data:     `{"type":"error","error":{"message":"quota exceeded"}}`,
			wantKind: EventErrorNotice,
			wantErr:  "quota exceeded",
		},
		{
			name:     "unknown type fails closed",
			data:     `{"type":"response.created"}`,
			wantKind: EventUnknown,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ev, err := DecodeControlEvent([]byte(tc.data))
			if err != nil {
				t.Fatalf("DecodeControlEvent: %v", err)
			}
			if ev.Kind != tc.wantKind {
				t.Errorf("Kind = %v, want %v", ev.Kind, tc.wantKind)
			}
			if ev.Text != tc.wantText {
				t.Errorf("Text = %q, want %q", ev.Text, tc.wantText)
			}
			if ev.Err != tc.wantErr {
				t.Errorf("Err = %q, want %q", ev.Err, tc.wantErr)
			}
		})
	}
}

func TestDecodeControlEvent_Malformed(t *testing.T) {
	t.Parallel()

	for _, data := range []string{
		"not json",
		"{}",
		`{"transcript":"missing type"}`,
		"",
	} {
		if _, err := DecodeControlEvent([]byte(data)); err == nil {
			t.Errorf("DecodeControlEvent(%q) should fail", data)
		}
	}
}

func TestEventKindString(t *testing.T) {
	t.Parallel()

	want := map[EventKind]string{
		EventUnknown:        "unknown",
		EventSpeechStarted:  "speech_started",
		EventSpeechStopped:  "speech_stopped",
		EventUserTranscript: "user_transcript",
		EventAIDelta:        "ai_delta",
		EventAIDone:         "ai_done",
		EventSessionNotice:  "session_notice",
		EventErrorNotice:    "error_notice",
	}
	for kind, name := range want {
		if got := kind.String(); got != name {
			t.Errorf("%d.String() = %q, want %q", kind, got, name)
		}
	}
}
