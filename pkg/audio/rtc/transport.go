// Package rtc abstracts the peer media transport used by a realtime voice
// session: a bidirectional audio path plus an out-of-band control channel
// for structured events.
//
// The PeerTransport interface decouples session logic from any concrete
// WebRTC stack. The in-package mock transport is the default for the alpha
// and for tests; a pion-backed implementation can be slotted in later as
// another concrete PeerTransport.
package rtc

import (
	"context"

	"github.com/loquihq/loqui/pkg/audio"
)

// PeerTransport is one peer connection to the remote conversational
// endpoint. Implementations must be safe for concurrent use.
type PeerTransport interface {
	// CreateOffer creates the local SDP offer.
	CreateOffer(ctx context.Context) (sdpOffer string, err error)

	// AcceptAnswer applies the remote peer's SDP answer.
	AcceptAnswer(ctx context.Context, sdpAnswer string) error

	// AddICECandidate adds a remote ICE candidate.
	AddICECandidate(candidate string) error

	// AttachLocalTrack binds the outgoing audio track. Must be called
	// before negotiation completes.
	AttachLocalTrack(track *LocalTrack) error

	// OnRemoteTrack registers the callback invoked when the remote party's
	// audio track arrives. The callback receives the frame channel for that
	// track and is invoked at most once per track, on an internal
	// goroutine.
	OnRemoteTrack(fn func(frames <-chan audio.Frame))

	// ControlChannel opens (or returns) the out-of-band event channel
	// multiplexed alongside the media stream.
	ControlChannel(ctx context.Context) (ControlChannel, error)

	// OnClose registers the callback invoked when the transport shuts down
	// unexpectedly — a remote disconnect or a transport failure. It is not
	// invoked for a local Close. The callback runs at most once, on an
	// internal goroutine.
	OnClose(fn func(err error))

	// Close tears down the peer connection, stops outgoing senders, and
	// releases resources. Calling Close more than once is safe.
	Close() error
}

// Factory creates a fresh PeerTransport for one session.
type Factory func(ctx context.Context) (PeerTransport, error)

// MockFactory returns a Factory producing in-memory mock transports. It is
// the default wiring for the alpha build and for tests.
func MockFactory() Factory {
	return func(_ context.Context) (PeerTransport, error) {
		return NewMockTransport(), nil
	}
}

// ControlChannel carries structured events alongside the media stream.
// Messages are delivered strictly in arrival order to a single handler.
type ControlChannel interface {
	// OnMessage registers the inbound message handler. Messages arriving
	// before a handler is registered are buffered and flushed, in order, to
	// the first handler — no early events are dropped. Subsequent calls
	// replace the handler.
	OnMessage(fn func(data []byte))

	// Send transmits an outbound message.
	Send(ctx context.Context, data []byte) error

	// Close shuts the channel down. Calling Close more than once is safe.
	Close() error
}
