package player

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/civicvoice/bylaw-tts/internal/audio"
)

// fakeOutput stands in for a sound device. The test drives it by calling
// Tick, which runs the registered fill callback for one buffer.
type fakeOutput struct {
	rate     int
	frames   int
	startErr error

	mu    sync.Mutex
	fill  audio.FillFunc
	stops int
}

func newFakeOutput(rate, frames int) *fakeOutput {
	return &fakeOutput{rate: rate, frames: frames}
}

func (f *fakeOutput) SampleRate() int      { return f.rate }
func (f *fakeOutput) FramesPerBuffer() int { return f.frames }

func (f *fakeOutput) Start(fill audio.FillFunc) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.fill = fill
	f.mu.Unlock()
	return nil
}

func (f *fakeOutput) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return nil
}

func (f *fakeOutput) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// Tick runs one device callback and returns the buffer it produced.
func (f *fakeOutput) Tick() []float32 {
	f.mu.Lock()
	fill := f.fill
	f.mu.Unlock()

	buf := make([]float32, f.frames)
	if fill != nil {
		fill(buf)
	}
	return buf
}

type streamEvent struct {
	data []byte
	err  error
}

// scriptedStream is a network stream the test feeds by hand. Read blocks
// until the test pushes bytes, finishes the stream, or the session closes it.
type scriptedStream struct {
	events chan streamEvent
	closed chan struct{}
	once   sync.Once

	buf []byte
	err error
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{
		events: make(chan streamEvent, 64),
		closed: make(chan struct{}),
	}
}

func (s *scriptedStream) push(b []byte) {
	s.events <- streamEvent{data: b}
}

// finish ends the stream; a nil err becomes a clean EOF.
func (s *scriptedStream) finish(err error) {
	if err == nil {
		err = io.EOF
	}
	s.events <- streamEvent{err: err}
}

func (s *scriptedStream) Read(p []byte) (int, error) {
	for {
		if len(s.buf) > 0 {
			n := copy(p, s.buf)
			s.buf = s.buf[n:]
			return n, nil
		}
		if s.err != nil {
			return 0, s.err
		}
		select {
		case ev := <-s.events:
			s.buf = ev.data
			s.err = ev.err
		case <-s.closed:
			return 0, io.ErrClosedPipe
		}
	}
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// stateRecorder collects lifecycle transitions across goroutines.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(st State) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func headerLine() []byte {
	return []byte(`{"format":"pcm","sampleRate":24000,"channels":1,"bitsPerSample":16}` + "\n")
}

// pcmBytes encodes n samples of a constant int16 value as little-endian PCM.
func pcmBytes(n int, value int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = byte(value)
		out[i*2+1] = byte(value >> 8)
	}
	return out
}
