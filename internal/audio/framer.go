package audio

import "math"

// DefaultFrameSamples is one frame at 16kHz mono, roughly 250ms.
const DefaultFrameSamples = 4000

// Framer turns a continuous stream of float samples into fixed-size frames of
// little-endian signed 16-bit PCM. Samples are buffered until a full frame is
// available; no frame is ever emitted partially. A trailing partial frame is
// dropped on Reset.
type Framer struct {
	frameSamples int
	buf          []float32
}

// NewFramer creates a framer emitting frames of frameSamples samples.
func NewFramer(frameSamples int) *Framer {
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	return &Framer{
		frameSamples: frameSamples,
		buf:          make([]float32, 0, frameSamples),
	}
}

// Push appends samples to the internal buffer and returns every complete
// frame that became available, in order. Each returned frame is
// frameSamples*2 bytes of little-endian int16 PCM.
func (f *Framer) Push(samples []float32) [][]byte {
	f.buf = append(f.buf, samples...)

	var frames [][]byte
	for len(f.buf) >= f.frameSamples {
		frame := make([]byte, f.frameSamples*2)
		for i := 0; i < f.frameSamples; i++ {
			s := ClampSample(f.buf[i])
			frame[i*2] = byte(s)
			frame[i*2+1] = byte(uint16(s) >> 8)
		}
		frames = append(frames, frame)
		f.buf = f.buf[f.frameSamples:]
	}

	// Re-anchor the buffer so the slice above doesn't pin old frames
	if len(frames) > 0 {
		rest := make([]float32, len(f.buf), f.frameSamples)
		copy(rest, f.buf)
		f.buf = rest
	}

	return frames
}

// Buffered returns the number of samples waiting for the next frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset drops any buffered partial frame. Called when capture stops; a
// partial tail is never flushed as a short frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// ClampSample converts a float sample in [-1.0, 1.0) to a signed 16-bit
// value. Out-of-range samples clamp to the representable range rather than
// wrapping.
func ClampSample(v float32) int16 {
	scaled := math.Round(float64(v) * 32768)
	if scaled <= math.MinInt16 {
		return math.MinInt16
	}
	if scaled >= math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(scaled)
}
