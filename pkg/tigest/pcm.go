package tigest

import (
	"encoding/binary"
	"math"
)

// CalculateRMS returns the root-mean-square energy of a sample block.
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// FloatToPCM16 converts float32 samples in [-1, 1] to little-endian
// PCM16 bytes, the transport's outbound wire format.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat converts little-endian PCM16 bytes to float32 samples.
// A trailing odd byte is dropped.
func PCM16ToFloat(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / math.MaxInt16
	}
	return samples
}

// Resample converts samples between rates using linear interpolation.
// Good enough for the call recording track; the live streams never
// pass through here.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return nil
	}
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		srcIdx := float64(i) * ratio
		idx := int(srcIdx)
		frac := float32(srcIdx - float64(idx))
		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}

	return out
}

// SampleDuration returns the playing time in seconds of a sample count
// at the given rate.
func SampleDuration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate)
}
