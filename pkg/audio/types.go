// Package audio defines the PCM frame type and capture-source abstraction
// shared by the transport and analysis layers.
package audio

import (
	"context"
	"time"
)

// Frame represents a single frame of PCM audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the local
// microphone source, sent over the peer transport, and received from the
// remote party for playback and analysis.
type Frame struct {
	// Data is little-endian int16 PCM. Sample rate and channel count are
	// carried alongside because sources and sinks may disagree.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for peer transport audio).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo playback.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// CaptureSource provides live audio from a local input device.
//
// Start may block for an unbounded time while the host waits for a
// user-permission decision; callers must pass a cancellable context.
// Implementations must close the Frames channel after Stop.
type CaptureSource interface {
	// Start begins capturing. Returns an error if the device is unavailable
	// or the user denies permission.
	Start(ctx context.Context) error

	// Frames returns the channel delivering captured frames. The channel is
	// closed when the source stops.
	Frames() <-chan Frame

	// SampleRate returns the capture sample rate in Hz.
	SampleRate() int

	// Stop releases the device. Calling Stop more than once is safe.
	Stop() error
}
