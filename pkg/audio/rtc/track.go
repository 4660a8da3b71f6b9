package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/loquihq/loqui/pkg/audio"
)

const trackChannelBuffer = 64

// LocalTrack adapts a capture source into an outgoing transport track.
// It forwards frames while enabled and silently drops them while muted,
// keeping the negotiated track alive without transmitting microphone
// energy. Captured frames are mirrored into a tap ring before the mute
// gate, so a local activity analyzer keeps observing microphone energy
// while the track is muted.
type LocalTrack struct {
	src      audio.CaptureSource
	out      chan audio.Frame
	tap      *audio.Ring
	enabled  atomic.Bool
	stopOnce sync.Once
}

// NewLocalTrack wraps src and starts forwarding its frames. The track
// starts enabled.
func NewLocalTrack(src audio.CaptureSource) *LocalTrack {
	t := &LocalTrack{
		src: src,
		out: make(chan audio.Frame, trackChannelBuffer),
		tap: audio.NewRing(src.SampleRate()), // ~1s of lookback
	}
	t.enabled.Store(true)
	go t.pump()
	return t
}

// pump forwards source frames to the output until the source channel
// closes. Muted frames are dropped, not queued.
func (t *LocalTrack) pump() {
	defer close(t.out)
	for frame := range t.src.Frames() {
		t.tap.WriteFrame(frame)
		if !t.enabled.Load() {
			continue
		}
		select {
		case t.out <- frame:
		default:
			// Transport is not draining — drop rather than block capture.
		}
	}
}

// Frames returns the channel of outgoing frames consumed by the transport.
func (t *LocalTrack) Frames() <-chan audio.Frame { return t.out }

// Tap returns the ring mirroring the captured audio, including frames
// gated off while muted. The ring satisfies the activity analyzer's source
// contract.
func (t *LocalTrack) Tap() *audio.Ring { return t.tap }

// SetEnabled toggles transmission. Disabling does not stop the underlying
// capture; the track stays negotiated but transmits nothing.
func (t *LocalTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Enabled reports whether the track is currently transmitting.
func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

// Stop releases the underlying capture source. Idempotent.
func (t *LocalTrack) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		err = t.src.Stop()
	})
	return err
}
