package audio

import (
	"context"
	"sync"
	"time"
)

const silenceFrameInterval = 20 * time.Millisecond

// SilenceSource is a CaptureSource that emits zero-valued PCM frames at a
// steady cadence. It stands in for a real capture backend in deployments
// where the local track originates elsewhere (e.g., a browser peer) and the
// service only needs a negotiable placeholder track.
type SilenceSource struct {
	rate int

	mu      sync.Mutex
	frames  chan Frame
	cancel  context.CancelFunc
	stopped bool
}

// NewSilenceSource creates a silence source at the given sample rate.
func NewSilenceSource(rate int) *SilenceSource {
	if rate <= 0 {
		rate = 48000
	}
	return &SilenceSource{
		rate:   rate,
		frames: make(chan Frame, 16),
	}
}

// Start begins emitting silent frames every 20 ms until Stop is called or
// ctx is cancelled. The emitter goroutine owns the frame channel and closes
// it on exit, so Stop can never race a close against an in-flight send.
func (s *SilenceSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	samplesPerFrame := s.rate * int(silenceFrameInterval/time.Millisecond) / 1000
	data := make([]byte, samplesPerFrame*2)

	go func() {
		defer close(s.frames)
		ticker := time.NewTicker(silenceFrameInterval)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				frame := Frame{
					Data:       data,
					SampleRate: s.rate,
					Channels:   1,
					Timestamp:  time.Since(start),
				}
				select {
				case s.frames <- frame:
				default:
				}
			}
		}
	}()
	return nil
}

// Frames implements [CaptureSource].
func (s *SilenceSource) Frames() <-chan Frame { return s.frames }

// SampleRate implements [CaptureSource].
func (s *SilenceSource) SampleRate() int { return s.rate }

// Stop halts emission. The frame channel closes once the emitter drains
// out; when Start was never called, Stop closes it directly. Idempotent.
func (s *SilenceSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	} else {
		close(s.frames)
	}
	return nil
}
