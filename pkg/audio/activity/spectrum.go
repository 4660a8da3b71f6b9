package activity

import "math"

// Decibel range used to normalise bin magnitudes into [0, 1]. Matches the
// dynamic range of typical speech over a transport codec: anything at or
// below minDB maps to 0, anything at or above maxDB maps to 1.
const (
	minDB = -100.0
	maxDB = -30.0
)

// hannWindow returns the n-point Hann window.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// fft performs an in-place iterative radix-2 FFT. len(x) must be a power of
// two.
func fft(x []complex128) {
	n := len(x)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	// Butterflies.
	for size := 2; size <= n; size <<= 1 {
		angle := -2 * math.Pi / float64(size)
		wStep := complex(math.Cos(angle), math.Sin(angle))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			half := size / 2
			for k := 0; k < half; k++ {
				even := x[start+k]
				odd := x[start+k+half] * w
				x[start+k] = even + odd
				x[start+k+half] = even - odd
				w *= wStep
			}
		}
	}
}

// magnitudeSpectrum computes the normalised magnitude spectrum of samples.
// The input is Hann-windowed, transformed, and each of the len(samples)/2
// bins is converted to decibels and mapped linearly from [minDB, maxDB]
// onto [0, 1]. len(samples) must be a power of two and match len(window).
func magnitudeSpectrum(samples, window []float64, out []float64) {
	n := len(samples)
	x := make([]complex128, n)
	for i := range samples {
		x[i] = complex(samples[i]*window[i], 0)
	}
	fft(x)

	// Scale by 2/n so a full-scale sine maps to magnitude ≈ 1 before the
	// Hann coherent gain of 0.5.
	scale := 2.0 / float64(n)
	for i := 0; i < n/2; i++ {
		mag := cmplxAbs(x[i]) * scale
		out[i] = normaliseDB(mag)
	}
}

// normaliseDB maps a linear magnitude onto [0, 1] through the fixed decibel
// range. Zero magnitude maps to 0 exactly.
func normaliseDB(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := (db - minDB) / (maxDB - minDB)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
