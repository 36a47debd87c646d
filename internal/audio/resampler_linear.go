package audio

import (
	"fmt"
	"math"
)

// LinearResampler converts sample rates by linear interpolation. Simple,
// fast, no lookback state: it is invoked per network chunk, and a small
// phase discontinuity at chunk boundaries is an accepted tradeoff of that.
type LinearResampler struct{}

func NewLinearResampler() *LinearResampler {
	return &LinearResampler{}
}

// Resample maps output index i to source position i * inputRate/outputRate
// and interpolates between the two neighbouring input samples. Output length
// is floor(len(input) * outputRate / inputRate); when the rates are equal the
// input is returned as an unmodified copy.
func (r *LinearResampler) Resample(input []float32, inputRate, outputRate int) ([]float32, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: input=%d, output=%d", inputRate, outputRate)
	}
	if len(input) == 0 {
		return []float32{}, nil
	}

	if inputRate == outputRate {
		result := make([]float32, len(input))
		copy(result, input)
		return result, nil
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputLen := int(math.Floor(float64(len(input)) / ratio))
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		position := float64(i) * ratio
		idx := int(position)
		frac := float32(position - float64(idx))

		switch {
		case idx+1 < len(input):
			output[i] = input[idx]*(1-frac) + input[idx+1]*frac
		case idx < len(input):
			output[i] = input[idx]
		default:
			output[i] = 0
		}
	}

	return output, nil
}
