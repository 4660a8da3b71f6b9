package audio

import "sync"

// Ring is a fixed-capacity buffer of the most recent mono samples from a
// live audio stream. Writers push decoded frames; the activity analyzer
// reads the newest window on each tick. Older samples are overwritten.
//
// Ring is safe for concurrent use by one writer and multiple readers.
type Ring struct {
	mu    sync.Mutex
	buf   []float64
	head  int // next write position
	count int // number of valid samples, up to len(buf)
	rate  int // sample rate of the written stream, 0 until first write
}

// NewRing creates a ring holding up to capacity mono samples.
// Capacity must be positive; it is clamped to 1 otherwise.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// WriteFrame decodes frame's PCM to mono and appends it.
// Frames with no data or a non-positive sample rate are ignored.
func (r *Ring) WriteFrame(frame Frame) {
	if len(frame.Data) == 0 || frame.SampleRate <= 0 {
		return
	}
	r.WriteSamples(DecodePCM16Mono(frame.Data, frame.Channels), frame.SampleRate)
}

// WriteSamples appends mono samples captured at rate Hz.
func (r *Ring) WriteSamples(samples []float64, rate int) {
	if len(samples) == 0 || rate <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rate = rate
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
	}
	r.count += len(samples)
	if r.count > len(r.buf) {
		r.count = len(r.buf)
	}
}

// ReadRecent copies the newest len(dst) samples into dst, oldest first.
// When fewer samples are available, the front of dst is zero-filled and the
// available samples are right-aligned. Returns the number of real samples
// copied.
func (r *Ring) ReadRecent(dst []float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(dst)
	avail := r.count
	if avail > n {
		avail = n
	}
	for i := 0; i < n-avail; i++ {
		dst[i] = 0
	}
	// Oldest of the newest `avail` samples sits `avail` positions behind head.
	start := r.head - avail
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < avail; i++ {
		dst[n-avail+i] = r.buf[(start+i)%len(r.buf)]
	}
	return avail
}

// Ready reports whether the ring has received any samples yet.
func (r *Ring) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count > 0 && r.rate > 0
}

// SampleRate returns the rate of the written stream, or 0 before the first
// write.
func (r *Ring) SampleRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// Reset discards all buffered samples but keeps the capacity and rate.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}
