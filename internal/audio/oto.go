package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoOutput plays through oto's pull-based player. oto has no device-rate
// query, so the configured rate is used as the target rate. The player reads
// frames through an io.Reader that drives the same FillFunc contract the
// callback backend uses.
type OtoOutput struct {
	sampleRate      int
	framesPerBuffer int

	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	started bool
	closed  bool
}

func NewOtoOutput(sampleRate, framesPerBuffer int) (*OtoOutput, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid frames per buffer: %d", framesPerBuffer)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("create oto context: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("oto context not ready")
	}

	return &OtoOutput{
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		ctx:             ctx,
	}, nil
}

func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

func (o *OtoOutput) FramesPerBuffer() int {
	return o.framesPerBuffer
}

func (o *OtoOutput) Start(fill FillFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("output already stopped")
	}
	if o.started {
		return fmt.Errorf("output already started")
	}

	reader := &fillReader{
		fill:  fill,
		frame: make([]float32, o.framesPerBuffer),
	}
	o.player = o.ctx.NewPlayer(reader)
	o.player.Play()
	o.started = true
	return nil
}

func (o *OtoOutput) Stop() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	player := o.player
	o.player = nil
	o.started = false
	o.mu.Unlock()

	// The oto context itself is process-wide and has no Close.
	if player != nil {
		return player.Close()
	}
	return nil
}

// fillReader adapts the FillFunc pull contract to oto's io.Reader: each
// frame is pulled once and encoded as float32 little-endian bytes.
type fillReader struct {
	fill  FillFunc
	frame []float32
	buf   []byte
	off   int
}

func (r *fillReader) Read(p []byte) (int, error) {
	if r.off == len(r.buf) {
		r.fill(r.frame)
		if r.buf == nil {
			r.buf = make([]byte, len(r.frame)*4)
		}
		for i, s := range r.frame {
			binary.LittleEndian.PutUint32(r.buf[i*4:], math.Float32bits(s))
		}
		r.off = 0
	}

	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}
