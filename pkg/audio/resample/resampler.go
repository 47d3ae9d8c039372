// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Converts decoded float frames to the engine rate chunk by chunk
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates.
// State carries across calls, so a stream can be fed in arbitrary chunks.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position in frames where 0 is lastFrame when primed, else input[0]
	position  float64
	lastFrame []float32
	primed    bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]float32, channels),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Resample converts interleaved input at inputRate into output at
// outputRate and returns the number of samples written. output must hold
// at least MaxOutputSamples(len(input)) samples.
func (r *Resampler) Resample(input []float32, output []float32) int {
	ch := r.channels
	inFrames := len(input) / ch
	if inFrames == 0 {
		return 0
	}

	offset := 0
	if r.primed {
		offset = 1
	}
	avail := inFrames + offset
	frameAt := func(i, c int) float32 {
		if i < 0 {
			return r.lastFrame[c]
		}
		return input[i*ch+c]
	}

	outFrames := len(output) / ch
	outIdx := 0
	for outIdx < outFrames {
		idx := int(r.position)
		if idx+1 >= avail {
			break
		}
		frac := float32(r.position - float64(idx))
		for c := 0; c < ch; c++ {
			a := frameAt(idx-offset, c)
			b := frameAt(idx+1-offset, c)
			output[outIdx*ch+c] = a + (b-a)*frac
		}
		outIdx++
		r.position += r.ratio
	}

	// the last input frame becomes the origin of the next chunk
	r.position -= float64(avail - 1)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.lastFrame, input[(inFrames-1)*ch:inFrames*ch])
	r.primed = true

	return outIdx * ch
}

// Flush emits the frames still owed for the final input frame
func (r *Resampler) Flush(output []float32) int {
	if !r.primed {
		return 0
	}
	ch := r.channels
	outIdx := 0
	for r.position < 1 && outIdx < len(output)/ch {
		copy(output[outIdx*ch:], r.lastFrame)
		outIdx++
		r.position += r.ratio
	}
	r.Reset()
	return outIdx * ch
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// MaxOutputSamples bounds the output produced from inputSamples samples
func (r *Resampler) MaxOutputSamples(inputSamples int) int {
	inputFrames := inputSamples/r.channels + 1
	return (int(math.Ceil(float64(inputFrames)/r.ratio)) + 1) * r.channels
}

// OutputFrames returns the expected length at outputRate of a stream of
// inputFrames frames
func (r *Resampler) OutputFrames(inputFrames int) int {
	return int(math.Ceil(float64(inputFrames) / r.ratio))
}
