package audio_test

import (
	"math"
	"testing"

	"github.com/loquihq/loqui/pkg/audio"
)

func TestRing_ReadRecentPadsWhenUnderfilled(t *testing.T) {
	t.Parallel()

	r := audio.NewRing(8)
	r.WriteSamples([]float64{0.1, 0.2, 0.3}, 16000)

	dst := make([]float64, 5)
	n := r.ReadRecent(dst)
	if n != 3 {
		t.Fatalf("ReadRecent copied %d samples, want 3", n)
	}
	want := []float64{0, 0, 0.1, 0.2, 0.3}
	for i := range want {
		if math.Abs(dst[i]-want[i]) > 1e-9 {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	t.Parallel()

	r := audio.NewRing(4)
	r.WriteSamples([]float64{1, 2, 3, 4, 5, 6}, 16000)

	dst := make([]float64, 4)
	if n := r.ReadRecent(dst); n != 4 {
		t.Fatalf("ReadRecent copied %d samples, want 4", n)
	}
	want := []float64{3, 4, 5, 6}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestRing_ReadyAndRate(t *testing.T) {
	t.Parallel()

	r := audio.NewRing(16)
	if r.Ready() {
		t.Fatal("empty ring should not be ready")
	}
	if r.SampleRate() != 0 {
		t.Fatalf("SampleRate = %d before any write, want 0", r.SampleRate())
	}

	r.WriteFrame(audio.Frame{Data: audio.EncodePCM16Mono([]float64{0.5}), SampleRate: 24000, Channels: 1})
	if !r.Ready() {
		t.Fatal("ring should be ready after a frame write")
	}
	if r.SampleRate() != 24000 {
		t.Fatalf("SampleRate = %d, want 24000", r.SampleRate())
	}

	r.Reset()
	if r.Ready() {
		t.Fatal("ring should not be ready after Reset")
	}
}

func TestRing_IgnoresEmptyFrames(t *testing.T) {
	t.Parallel()

	r := audio.NewRing(4)
	r.WriteFrame(audio.Frame{SampleRate: 48000, Channels: 1})
	r.WriteFrame(audio.Frame{Data: []byte{1, 2}, Channels: 1}) // no rate
	if r.Ready() {
		t.Fatal("ring should ignore empty or rateless frames")
	}
}

func TestDecodePCM16Mono_StereoAveraging(t *testing.T) {
	t.Parallel()

	// One stereo frame: L=+16384, R=-16384 → average 0.
	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	out := audio.DecodePCM16Mono(pcm, 2)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if math.Abs(out[0]) > 1e-9 {
		t.Errorf("averaged sample = %v, want 0", out[0])
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	in := []float64{0, 0.25, -0.25, 0.99, -0.99}
	out := audio.DecodePCM16Mono(audio.EncodePCM16Mono(in), 1)
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(out[i]-in[i]) > 1e-3 {
			t.Errorf("out[%d] = %v, want ≈%v", i, out[i], in[i])
		}
	}
}
