package audio

// DecodePCM16Mono converts little-endian int16 PCM into normalised float64
// samples in [-1, 1], averaging channel pairs down to mono when channels is 2.
// A trailing odd byte is ignored.
func DecodePCM16Mono(pcm []byte, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	samples := len(pcm) / 2
	frames := samples / channels
	out := make([]float64, 0, frames)

	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 2
			s := int16(pcm[idx]) | int16(pcm[idx+1])<<8
			sum += int32(s)
		}
		avg := sum / int32(channels)
		out = append(out, float64(avg)/32768.0)
	}
	return out
}

// EncodePCM16Mono converts normalised float64 samples in [-1, 1] into
// little-endian int16 mono PCM. Values outside the range are clamped.
func EncodePCM16Mono(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
