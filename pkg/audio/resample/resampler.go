// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Carries fractional phase and the previous frame across calls
package resample

// Resampler performs linear interpolation to convert between sample rates.
//
// The fractional read position persists across Resample calls and the last
// frame of each input chunk is retained, so a stream fed in arbitrary chunk
// sizes is resampled exactly once with no drift at chunk boundaries.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64 // input frames consumed per output frame
	position   float64 // read position in frames; 0 indexes the carried frame
	prev       []float32
	hasPrev    bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		prev:       make([]float32, channels),
	}
}

// Resample converts interleaved input samples at inputRate to interleaved
// samples at outputRate. Each call consumes the input exactly once; samples
// near the chunk boundary are interpolated against the carried previous frame
// on the next call.
func (r *Resampler) Resample(input []float32) []float32 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return nil
	}

	// Total frames visible this call: the carried frame plus the new chunk.
	carry := 0
	if r.hasPrev {
		carry = 1
	}
	totalFrames := carry + inputFrames

	frameAt := func(idx, ch int) float32 {
		if idx < carry {
			return r.prev[ch]
		}
		return input[(idx-carry)*r.channels+ch]
	}

	estimate := int(float64(inputFrames)/r.step) + 2
	output := make([]float32, 0, estimate*r.channels)

	for int(r.position)+1 < totalFrames {
		idx0 := int(r.position)
		frac := float32(r.position - float64(idx0))

		for ch := 0; ch < r.channels; ch++ {
			s0 := frameAt(idx0, ch)
			s1 := frameAt(idx0+1, ch)
			output = append(output, s0*(1.0-frac)+s1*frac)
		}

		r.position += r.step
	}

	// Rebase position so index 0 refers to the carried frame next call.
	copy(r.prev, input[(inputFrames-1)*r.channels:])
	r.hasPrev = true
	r.position -= float64(totalFrames - 1)

	return output
}

// Reset clears the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.hasPrev = false
	for i := range r.prev {
		r.prev[i] = 0
	}
}

// OutputFramesFor estimates how many output frames a given number of input
// frames will produce
func (r *Resampler) OutputFramesFor(inputFrames int) int {
	return int(float64(inputFrames) / r.step)
}
