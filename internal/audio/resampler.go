package audio

// Resampler converts mono float32 samples between sample rates.
type Resampler interface {
	Resample(input []float32, inputRate, outputRate int) ([]float32, error)
}
