package audio

// FillFunc is invoked once per device frame. The implementation must fill
// the whole buffer: samples it has no data for are expected to be zeroed.
// It is called from the device's real-time context and must not block.
type FillFunc func(out []float32)

// Output is a mono playback device that pulls fixed-size frames of float32
// samples through a FillFunc at its own cadence.
type Output interface {
	// SampleRate is the device rate in Hz, fixed for the lifetime of the
	// output and queried before any audio flows.
	SampleRate() int

	// FramesPerBuffer is the fixed frame size handed to the FillFunc.
	FramesPerBuffer() int

	// Start opens the device and begins pulling frames.
	Start(fill FillFunc) error

	// Stop halts pulling and releases device resources. Safe to call more
	// than once and before Start.
	Stop() error
}
