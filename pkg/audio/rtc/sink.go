package rtc

import (
	"sync"

	"github.com/loquihq/loqui/pkg/audio"
)

const sinkRingCapacity = 48000 // ~1s at transport rate

// RemoteSink receives the remote party's audio for playback and analysis.
// It buffers decoded samples in a ring that satisfies the activity
// analyzer's source contract. The sink never owns the frame channel it is
// bound to; Detach only stops consumption.
type RemoteSink struct {
	ring *audio.Ring

	mu       sync.Mutex
	detached bool
	done     chan struct{}
}

// NewRemoteSink creates an unbound sink.
func NewRemoteSink() *RemoteSink {
	return &RemoteSink{
		ring: audio.NewRing(sinkRingCapacity),
		done: make(chan struct{}),
	}
}

// Bind starts draining frames into the sink. It may be called once per
// remote track; frames arriving after Detach are discarded.
func (s *RemoteSink) Bind(frames <-chan audio.Frame) {
	go func() {
		for {
			select {
			case <-s.done:
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				s.ring.WriteFrame(frame)
			}
		}
	}()
}

// Ready reports whether remote audio has started arriving.
func (s *RemoteSink) Ready() bool { return s.ring.Ready() }

// SampleRate returns the remote stream's sample rate, or 0 before the
// first frame.
func (s *RemoteSink) SampleRate() int { return s.ring.SampleRate() }

// ReadRecent copies the newest len(dst) mono samples into dst, oldest
// first. See [audio.Ring.ReadRecent].
func (s *RemoteSink) ReadRecent(dst []float64) int { return s.ring.ReadRecent(dst) }

// Detach stops consuming remote frames and clears buffered samples.
// Idempotent.
func (s *RemoteSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.detached = true
	close(s.done)
	s.ring.Reset()
}
