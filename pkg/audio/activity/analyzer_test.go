package activity_test

import (
	"math"
	"testing"

	"github.com/loquihq/loqui/pkg/audio"
	"github.com/loquihq/loqui/pkg/audio/activity"
)

// staticSource serves a fixed sample window on every read.
type staticSource struct {
	rate    int
	samples []float64
	ready   bool
}

func (s *staticSource) Ready() bool     { return s.ready }
func (s *staticSource) SampleRate() int { return s.rate }

func (s *staticSource) ReadRecent(dst []float64) int {
	n := copy(dst, s.samples)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return n
}

// toneMix sums sines at the given frequencies, each with amplitude amp.
func toneMix(n, rate int, amp float64, freqs ...float64) []float64 {
	out := make([]float64, n)
	for _, f := range freqs {
		for i := range out {
			out[i] += amp * math.Sin(2*math.Pi*f*float64(i)/float64(rate))
		}
	}
	return out
}

func TestAnalyzer_SilenceStaysInactive(t *testing.T) {
	t.Parallel()

	src := &staticSource{rate: 48000, samples: make([]float64, 1024), ready: true}
	a := activity.New(src, activity.Config{WindowSize: 1024})

	var frame activity.Frame
	for range 20 {
		frame = a.Tick()
	}
	if frame.Active {
		t.Fatal("silence should never activate the gate")
	}
	if frame.Level > 1e-6 {
		t.Errorf("Level = %v for silence, want ≈0", frame.Level)
	}
}

func TestAnalyzer_HighBandEnergyActivates(t *testing.T) {
	t.Parallel()

	const rate = 48000
	src := &staticSource{
		rate:    rate,
		samples: toneMix(1024, rate, 0.3, 6000, 8000, 11000),
		ready:   true,
	}
	a := activity.New(src, activity.Config{
		WindowSize:      1024,
		Smoothing:       0, // no damping so the test converges immediately
		Threshold:       0.02,
		ActivationTicks: 2,
	})

	var frame activity.Frame
	for range 5 {
		frame = a.Tick()
	}

	if frame.Level <= 0.02 {
		t.Fatalf("Level = %v, want above threshold for sustained tones", frame.Level)
	}
	if !frame.Active {
		t.Fatal("gate should be active after consecutive above-threshold ticks")
	}
	if frame.Bands.High <= frame.Bands.Low || frame.Bands.High <= frame.Bands.Mid {
		t.Errorf("Bands = %+v, want High to dominate for tones above 4 kHz", frame.Bands)
	}
}

func TestAnalyzer_GateDebounce(t *testing.T) {
	t.Parallel()

	const rate = 48000
	loud := toneMix(1024, rate, 0.4, 1000, 2000, 6000)
	src := &staticSource{rate: rate, samples: loud, ready: true}
	a := activity.New(src, activity.Config{
		WindowSize:      1024,
		Smoothing:       0,
		Threshold:       0.02,
		ActivationTicks: 3,
		ReleaseTicks:    2,
	})

	// Two loud ticks must not activate with ActivationTicks=3.
	a.Tick()
	if f := a.Tick(); f.Active {
		t.Fatal("gate activated before reaching ActivationTicks")
	}
	if f := a.Tick(); !f.Active {
		t.Fatal("gate should activate on the third consecutive loud tick")
	}

	// One silent tick must not release with ReleaseTicks=2.
	src.samples = make([]float64, 1024)
	if f := a.Tick(); !f.Active {
		t.Fatal("gate released before reaching ReleaseTicks")
	}
	if f := a.Tick(); f.Active {
		t.Fatal("gate should release on the second consecutive quiet tick")
	}
}

func TestAnalyzer_RetriesUntilSourceReady(t *testing.T) {
	t.Parallel()

	const rate = 48000
	src := &staticSource{rate: rate, samples: toneMix(1024, rate, 0.4, 1000, 3000)}
	a := activity.New(src, activity.Config{WindowSize: 1024, Smoothing: 0, Threshold: 0.02, ActivationTicks: 1})

	// Source not ready: ticks are harmless no-ops.
	for range 3 {
		if f := a.Tick(); f.Level != 0 || f.Active {
			t.Fatal("unready source should yield the zero frame")
		}
	}

	src.ready = true
	if f := a.Tick(); f.Level <= 0 {
		t.Fatalf("Level = %v after source became ready, want > 0", f.Level)
	}
}

func TestAnalyzer_NilSourceFailsClosed(t *testing.T) {
	t.Parallel()

	a := activity.New(nil, activity.Config{})
	for range 3 {
		if f := a.Tick(); f.Active || f.Level != 0 {
			t.Fatal("nil source must yield permanent zero frames")
		}
	}
}

func TestAnalyzer_StopResetsAndIsIdempotent(t *testing.T) {
	t.Parallel()

	const rate = 48000
	src := &staticSource{rate: rate, samples: toneMix(1024, rate, 0.4, 2000), ready: true}
	a := activity.NewCaptureAnalyzer(src)

	a.Tick()
	a.Stop()
	a.Stop() // second call must be safe

	if f := a.Frame(); f.Level != 0 || f.Active {
		t.Fatalf("Frame after Stop = %+v, want zero frame", f)
	}
}

func TestAnalyzer_ReadsRingSource(t *testing.T) {
	t.Parallel()

	ring := audio.NewRing(2048)
	ring.WriteSamples(toneMix(2048, 24000, 0.5, 500, 1500), 24000)

	a := activity.New(ring, activity.Config{WindowSize: 1024, Smoothing: 0, Threshold: 0.02, ActivationTicks: 1})
	f := a.Tick()
	if !f.Active {
		t.Fatalf("frame = %+v, want active for sustained mid-band tones", f)
	}
	if f.Bands.Mid <= f.Bands.High {
		t.Errorf("Bands = %+v, want Mid to dominate for 0.5–1.5 kHz tones", f.Bands)
	}
}
