// Package activity derives a voice-activity signal from a live audio source.
//
// An Analyzer continuously computes a normalised loudness level and three
// frequency-band energies (low/mid/high) from the most recent window of
// samples, and gates a boolean "voice active" flag with debounced hysteresis
// so transient noise does not flicker the signal. Two variants exist: one
// for the local microphone capture and one for the remote playback sink.
// Both share the same algorithm and differ only in their default threshold —
// lossy remote audio carries a higher noise floor than a local capture.
//
// The analysis is cadence-agnostic: Tick may be called at any polling rate,
// and Start runs an owned polling loop at roughly display-refresh cadence.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Band edges in Hz. Low covers the rumble below typical speech energy, mid
// covers the voice fundamentals and formants, high covers sibilance and up
// to Nyquist.
const (
	lowBandCutoff  = 250.0
	highBandCutoff = 4000.0
)

// Default thresholds per source variant.
const (
	CaptureThreshold  = 0.04
	PlaybackThreshold = 0.08
)

const (
	defaultWindowSize      = 1024
	defaultSmoothing       = 0.8
	defaultActivationTicks = 2
	defaultReleaseTicks    = 5
	defaultTickInterval    = 16 * time.Millisecond
)

// Source is a live audio stream the analyzer can poll. The analyzer only
// reads from the source — it never owns or closes it.
type Source interface {
	// Ready reports whether the source has started producing samples.
	Ready() bool

	// SampleRate returns the stream's sample rate in Hz, or 0 when unknown.
	SampleRate() int

	// ReadRecent copies the newest len(dst) mono samples into dst, oldest
	// first, zero-padding the front when fewer are available. Returns the
	// number of real samples copied.
	ReadRecent(dst []float64) int
}

// Bands holds the mean normalised energy of the three frequency ranges.
type Bands struct {
	Low  float64
	Mid  float64
	High float64
}

// Frame is one tick's worth of derived loudness, band, and activity data.
// All values are in [0, 1].
type Frame struct {
	Level  float64
	Bands  Bands
	Active bool
}

// Config tunes the analysis. Zero values select the defaults above.
type Config struct {
	// WindowSize is the FFT window in samples. Must be a power of two;
	// invalid values fall back to the default.
	WindowSize int

	// Smoothing is the per-bin exponential smoothing constant in [0, 1).
	// Higher values damp frame-to-frame jitter more.
	Smoothing float64

	// Threshold is the level above which the stream counts towards
	// activation.
	Threshold float64

	// ActivationTicks is the number of consecutive above-threshold ticks
	// required to switch Active on.
	ActivationTicks int

	// ReleaseTicks is the number of consecutive below-threshold ticks
	// required to switch Active off.
	ReleaseTicks int

	// TickInterval is the polling cadence used by Start.
	TickInterval time.Duration
}

func (c *Config) applyDefaults() {
	if !isPowerOfTwo(c.WindowSize) || c.WindowSize < 256 || c.WindowSize > 8192 {
		c.WindowSize = defaultWindowSize
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		c.Smoothing = defaultSmoothing
	}
	if c.Threshold <= 0 {
		c.Threshold = CaptureThreshold
	}
	if c.ActivationTicks <= 0 {
		c.ActivationTicks = defaultActivationTicks
	}
	if c.ReleaseTicks <= 0 {
		c.ReleaseTicks = defaultReleaseTicks
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
}

// Analyzer polls a Source and maintains the latest analysis Frame.
// All exported methods are safe for concurrent use.
type Analyzer struct {
	src Source
	cfg Config

	window  []float64
	samples []float64
	mags    []float64

	mu         sync.Mutex
	smoothed   []float64
	frame      Frame
	active     bool
	aboveTicks int
	belowTicks int
	failed     bool
	cancel     context.CancelFunc

	failLog sync.Once
}

// New creates an Analyzer over src with the given configuration.
// A nil src is tolerated: the analyzer reports permanent zero frames
// instead of crashing the caller.
func New(src Source, cfg Config) *Analyzer {
	cfg.applyDefaults()
	return &Analyzer{
		src:     src,
		cfg:     cfg,
		window:  hannWindow(cfg.WindowSize),
		samples: make([]float64, cfg.WindowSize),
		mags:    make([]float64, cfg.WindowSize/2),
	}
}

// NewCaptureAnalyzer creates an Analyzer tuned for a local microphone
// capture stream.
func NewCaptureAnalyzer(src Source) *Analyzer {
	return New(src, Config{Threshold: CaptureThreshold})
}

// NewPlaybackAnalyzer creates an Analyzer tuned for a remote playback sink,
// which tolerates a higher noise floor than a clean capture.
func NewPlaybackAnalyzer(src Source) *Analyzer {
	return New(src, Config{Threshold: PlaybackThreshold})
}

// Tick runs one analysis pass and returns the resulting frame. When the
// source is not yet producing samples the previous frame is returned and
// binding is retried on the next tick. A structurally unusable source
// (nil, or no sample rate once ready) is reported once and yields zero
// frames permanently.
func (a *Analyzer) Tick() Frame {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failed {
		return Frame{}
	}
	if a.src == nil {
		a.fail("activity: no source bound")
		return Frame{}
	}
	if !a.src.Ready() {
		// Source not producing yet — retry binding on a later tick.
		return a.frame
	}
	rate := a.src.SampleRate()
	if rate <= 0 {
		a.fail("activity: source reports no sample rate")
		return Frame{}
	}

	a.src.ReadRecent(a.samples)
	magnitudeSpectrum(a.samples, a.window, a.mags)

	if a.smoothed == nil {
		a.smoothed = make([]float64, len(a.mags))
		copy(a.smoothed, a.mags)
	} else {
		alpha := a.cfg.Smoothing
		for i, m := range a.mags {
			a.smoothed[i] = alpha*a.smoothed[i] + (1-alpha)*m
		}
	}

	level, bands := summarise(a.smoothed, rate, a.cfg.WindowSize)
	a.updateGate(level)

	a.frame = Frame{Level: level, Bands: bands, Active: a.active}
	return a.frame
}

// updateGate applies the debounced hysteresis gate to the current level.
func (a *Analyzer) updateGate(level float64) {
	if level > a.cfg.Threshold {
		a.aboveTicks++
		a.belowTicks = 0
		if !a.active && a.aboveTicks >= a.cfg.ActivationTicks {
			a.active = true
		}
	} else {
		a.belowTicks++
		a.aboveTicks = 0
		if a.active && a.belowTicks >= a.cfg.ReleaseTicks {
			a.active = false
		}
	}
}

// summarise reduces a normalised spectrum to the overall level and the
// three band means. Band membership is decided by each bin's centre
// frequency, derived from the bin width rate/windowSize.
func summarise(mags []float64, rate, windowSize int) (float64, Bands) {
	binWidth := float64(rate) / float64(windowSize)

	var total float64
	var sums [3]float64
	var counts [3]int

	for i, m := range mags {
		total += m
		freq := float64(i) * binWidth
		switch {
		case freq < lowBandCutoff:
			sums[0] += m
			counts[0]++
		case freq < highBandCutoff:
			sums[1] += m
			counts[1]++
		default:
			sums[2] += m
			counts[2]++
		}
	}

	level := total / float64(len(mags))
	bands := Bands{}
	if counts[0] > 0 {
		bands.Low = sums[0] / float64(counts[0])
	}
	if counts[1] > 0 {
		bands.Mid = sums[1] / float64(counts[1])
	}
	if counts[2] > 0 {
		bands.High = sums[2] / float64(counts[2])
	}
	return level, bands
}

// Frame returns the most recently computed frame without running a pass.
func (a *Analyzer) Frame() Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frame
}

// Start launches the polling loop. It runs until Stop is called or ctx is
// cancelled. Calling Start while already running is a no-op.
func (a *Analyzer) Start(ctx context.Context) {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	interval := a.cfg.TickInterval
	a.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				a.Tick()
			}
		}
	}()
}

// Stop halts the polling loop and resets the output to the zero frame.
// Safe to call multiple times, including before Start. Call Stop whenever
// the bound source is torn down so no stale activity signal lingers.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.frame = Frame{}
	a.smoothed = nil
	a.active = false
	a.aboveTicks = 0
	a.belowTicks = 0
}

// fail marks the analyzer permanently inactive and logs the reason once.
func (a *Analyzer) fail(msg string) {
	a.failed = true
	a.frame = Frame{}
	a.failLog.Do(func() { slog.Error(msg) })
}
