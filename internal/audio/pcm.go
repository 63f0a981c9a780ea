package audio

import (
	"fmt"
	"math"
)

// BytesToSamples decodes little-endian signed 16-bit PCM into samples.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// SamplesToBytes encodes samples as little-endian signed 16-bit PCM.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(uint16(s) >> 8)
	}
	return data
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
// Useful for detecting audio levels and silence
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
