package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/civicvoice/bylaw-tts/internal/logging"
)

// PortAudioOutput plays through the default output device using PortAudio's
// periodic callback. The device's native sample rate is queried at
// construction time and becomes the pipeline's target rate.
type PortAudioOutput struct {
	sampleRate      int
	framesPerBuffer int

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
	closed  bool
}

func NewPortAudioOutput(framesPerBuffer int) (*PortAudioOutput, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid frames per buffer: %d", framesPerBuffer)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("query default output device: %w", err)
	}

	o := &PortAudioOutput{
		sampleRate:      int(dev.DefaultSampleRate),
		framesPerBuffer: framesPerBuffer,
	}
	logging.Infof("PortAudioOutput: device %q, rate %d Hz, frame %d",
		dev.Name, o.sampleRate, framesPerBuffer)
	return o, nil
}

func (o *PortAudioOutput) SampleRate() int {
	return o.sampleRate
}

func (o *PortAudioOutput) FramesPerBuffer() int {
	return o.framesPerBuffer
}

func (o *PortAudioOutput) Start(fill FillFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("output already stopped")
	}
	if o.started {
		return fmt.Errorf("output already started")
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(o.sampleRate), o.framesPerBuffer,
		func(out []float32) {
			fill(out)
		})
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}

	o.stream = stream
	o.started = true
	return nil
}

func (o *PortAudioOutput) Stop() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	stream := o.stream
	o.stream = nil
	o.started = false
	o.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			logging.Errorf("PortAudioOutput: stop stream: %v", err)
		}
		if err := stream.Close(); err != nil {
			logging.Errorf("PortAudioOutput: close stream: %v", err)
		}
	}

	portaudio.Terminate()
	return nil
}
