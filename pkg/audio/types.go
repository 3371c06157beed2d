// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, decoded sample blocks and PCM conversion helpers
package audio

// Format describes the format of a decoded audio stream
type Format struct {
	SampleRate int
	Channels   int
}

// Block represents one decoded packet's worth of interleaved float32 samples
type Block struct {
	Format  Format
	Samples []float32
}

// Frames returns the number of frames in the block
func (b Block) Frames() int {
	if b.Format.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// SampleFromInt16 converts a 16-bit PCM sample to float32 in [-1, 1)
func SampleFromInt16(sample int16) float32 {
	return float32(sample) / 32768.0
}

// SampleFromInt converts an integer PCM sample of the given bit depth to float32
func SampleFromInt(sample int32, bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	return float32(sample) / scale
}

// SampleToInt16 converts a float32 sample to 16-bit PCM, clipping out-of-range values
func SampleToInt16(sample float32) int16 {
	scaled := sample * 32767.0
	if scaled > 32767.0 {
		return 32767
	}
	if scaled < -32768.0 {
		return -32768
	}
	return int16(scaled)
}
