// Package mock provides test doubles for the audio package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/loquihq/loqui/pkg/audio"
)

// CaptureSource is a scriptable [audio.CaptureSource] for tests. Tests push
// frames with Emit and inspect Start/Stop call counts to verify resource
// handling.
type CaptureSource struct {
	// StartErr, when non-nil, is returned by Start. Use it to simulate a
	// denied microphone permission.
	StartErr error

	// Rate is the reported sample rate. Defaults to 48000 when zero.
	Rate int

	mu        sync.Mutex
	frames    chan audio.Frame
	started   int
	stopped   int
	closeOnce sync.Once
}

// NewCaptureSource creates a mock source with a buffered frame channel.
func NewCaptureSource() *CaptureSource {
	return &CaptureSource{frames: make(chan audio.Frame, 64)}
}

// Start implements [audio.CaptureSource].
func (s *CaptureSource) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	s.started++
	return nil
}

// Frames implements [audio.CaptureSource].
func (s *CaptureSource) Frames() <-chan audio.Frame { return s.frames }

// SampleRate implements [audio.CaptureSource].
func (s *CaptureSource) SampleRate() int {
	if s.Rate == 0 {
		return 48000
	}
	return s.Rate
}

// Stop implements [audio.CaptureSource]. It closes the frame channel on the
// first call.
func (s *CaptureSource) Stop() error {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.frames) })
	return nil
}

// Emit delivers a frame to consumers. Dropped when the buffer is full.
func (s *CaptureSource) Emit(frame audio.Frame) {
	select {
	case s.frames <- frame:
	default:
	}
}

// StartCalls returns the number of successful Start invocations.
func (s *CaptureSource) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// StopCalls returns the number of Stop invocations.
func (s *CaptureSource) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
