package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/civicvoice/bylaw-tts/internal/audio"
	"github.com/civicvoice/bylaw-tts/internal/logging"
)

const (
	// sourceChunkSize is the read size against the network stream.
	sourceChunkSize = 4096

	// minStartMillis of audio must be buffered at the device rate before
	// playback begins, unless the stream completes first with anything queued.
	minStartMillis = 100

	// Consumed samples are trimmed once the cursor passes trimAfterSeconds,
	// keeping the trailing trimKeepSeconds. Bounds memory on long utterances
	// without ever discarding unplayed audio.
	trimAfterSeconds = 3
	trimKeepSeconds  = 1
)

// Params configures one playback session.
type Params struct {
	Control    string
	SourceRate int
	OpenOutput func() (audio.Output, error)
	OpenStream func(ctx context.Context) (io.ReadCloser, error)
	Resampler  audio.Resampler

	// OnState is invoked on every lifecycle transition. It may fire from the
	// device's real-time context and must not block.
	OnState func(State)

	onDone func(*Session)
}

// Session runs one text-to-speech request from fetch to silence. Exactly two
// goroutines touch the queue: the produce loop appends, the device callback
// advances the cursor.
type Session struct {
	id         uint64
	control    string
	sourceRate int

	openOutput func() (audio.Output, error)
	openStream func(ctx context.Context) (io.ReadCloser, error)
	resampler  audio.Resampler
	parser     *audio.FrameParser
	queue      *sampleQueue

	// Derived from the device rate during start, before any concurrency.
	targetRate int
	minStart   int
	trimAfter  int
	trimKeep   int

	mu        sync.Mutex
	state     State
	playing   bool
	complete  bool
	initiated bool
	stopped   bool
	err       error
	underruns int
	output    audio.Output
	stream    io.ReadCloser

	onState func(State)
	onDone  func(*Session)

	finishOnce   sync.Once
	teardownOnce sync.Once
	done         chan struct{}
}

func newSession(p Params) *Session {
	return &Session{
		id:         logging.NextSessionSeq(),
		control:    p.Control,
		sourceRate: p.SourceRate,
		openOutput: p.OpenOutput,
		openStream: p.OpenStream,
		resampler:  p.Resampler,
		parser:     audio.NewFrameParser(),
		queue:      &sampleQueue{},
		state:      StateIdle,
		onState:    p.OnState,
		onDone:     p.onDone,
		done:       make(chan struct{}),
	}
}

// start acquires the output device, opens the stream, and begins playback.
// Any failure here tears the session down into StateError.
func (s *Session) start(ctx context.Context) error {
	s.setState(StateLoading)

	output, err := s.openOutput()
	if err != nil {
		err = fmt.Errorf("audio output unavailable: %w", err)
		s.fail(err)
		return err
	}
	s.mu.Lock()
	s.output = output
	s.mu.Unlock()

	s.targetRate = output.SampleRate()
	s.minStart = s.targetRate * minStartMillis / 1000
	s.trimAfter = s.targetRate * trimAfterSeconds
	s.trimKeep = s.targetRate * trimKeepSeconds

	stream, err := s.openStream(ctx)
	if err != nil {
		s.fail(err)
		return err
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	if err := output.Start(s.fill); err != nil {
		err = fmt.Errorf("start audio output: %w", err)
		s.fail(err)
		return err
	}

	logging.Infof("player: session %d started for control %q (source %d Hz, device %d Hz)",
		s.id, s.control, s.sourceRate, s.targetRate)

	go s.produce()
	return nil
}

// produce reads the network stream and feeds the queue until EOF, error, or
// teardown. Transport errors after playback has started degrade to a soft
// end-of-stream: whatever is buffered still plays out.
func (s *Session) produce() {
	buf := make([]byte, sourceChunkSize)
	headerChecked := false

	for {
		n, err := s.stream.Read(buf)
		if n > 0 {
			samples := s.parser.Push(buf[:n])
			if !headerChecked && s.parser.HeaderDone() {
				headerChecked = true
				if h := s.parser.Header(); h.SampleRate > 0 && h.SampleRate != s.sourceRate {
					logging.Warnf("player: session %d header rate %d Hz differs from configured %d Hz, using configured",
						s.id, h.SampleRate, s.sourceRate)
				}
			}
			if len(samples) > 0 {
				out, rerr := s.resampler.Resample(samples, s.sourceRate, s.targetRate)
				if rerr != nil {
					s.fail(fmt.Errorf("resample: %w", rerr))
					return
				}
				s.queue.append(out)
			}
		}
		if err != nil {
			if s.isStopped() {
				return
			}
			if errors.Is(err, io.EOF) {
				s.markComplete()
				return
			}
			if s.hasStarted() {
				logging.Warnf("player: session %d stream interrupted after playback started, draining buffered audio: %v",
					s.id, err)
				s.markComplete()
				return
			}
			s.fail(fmt.Errorf("speech stream: %w", err))
			return
		}
	}
}

// fill is the device callback: it runs on the audio clock, never blocks, and
// silence-fills whatever the queue cannot cover.
func (s *Session) fill(out []float32) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	startedNow := false
	if !s.playing {
		ready := s.queue.buffered() >= s.minStart ||
			(s.complete && s.queue.length() > 0)
		if !ready {
			s.mu.Unlock()
			return
		}
		s.playing = true
		startedNow = true
	}
	complete := s.complete
	s.mu.Unlock()

	if startedNow {
		s.setState(StatePlaying)
	}

	n := s.queue.fill(out)
	if n > 0 {
		s.mu.Lock()
		s.initiated = true
		s.mu.Unlock()
	}
	if n < len(out) && !complete {
		s.mu.Lock()
		s.underruns++
		count := s.underruns
		s.mu.Unlock()
		logging.Debugf("player: session %d underrun %d (%d of %d samples)", s.id, count, n, len(out))
	}

	s.queue.trim(s.trimAfter, s.trimKeep)

	if complete {
		if s.State() == StatePlaying {
			s.setState(StateDraining)
		}
		if s.queue.drained() && s.queue.length() > 0 {
			s.finish()
		}
	}
}

func (s *Session) markComplete() {
	s.mu.Lock()
	s.complete = true
	s.mu.Unlock()

	if s.queue.length() == 0 {
		// Stream ended without a single sample; nothing will ever play.
		logging.Infof("player: session %d stream completed empty", s.id)
		s.finish()
	}
}

// finish schedules teardown off the audio clock; the callback must never
// block on device release.
func (s *Session) finish() {
	s.finishOnce.Do(func() {
		go s.teardown(StateStopped, nil)
	})
}

// Stop cancels the session. Safe to call any number of times, including
// after natural completion.
func (s *Session) Stop() {
	s.teardown(StateStopped, nil)
}

func (s *Session) fail(err error) {
	logging.Errorf("player: session %d failed: %v", s.id, err)
	s.teardown(StateError, err)
}

// teardown releases everything exactly once: playing flag off, device
// released, queue cleared, registry handle dropped.
func (s *Session) teardown(final State, err error) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.playing = false
		s.stopped = true
		s.err = err
		output := s.output
		stream := s.stream
		s.mu.Unlock()

		if output != nil {
			if stopErr := output.Stop(); stopErr != nil {
				logging.Errorf("player: session %d output stop: %v", s.id, stopErr)
			}
		}
		s.queue.clear()
		if stream != nil {
			_ = stream.Close()
		}

		if !s.setState(final) {
			s.setState(StateStopped)
		}
		if s.onDone != nil {
			s.onDone(s)
		}
		close(s.done)

		logging.Infof("player: session %d finished in state %s", s.id, s.State())
	})
}

// setState applies a lifecycle transition, returning false if it is not a
// legal step. The OnState callback fires outside the lock.
func (s *Session) setState(to State) bool {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return true
	}
	if !canTransition(from, to) {
		s.mu.Unlock()
		logging.Debugf("player: session %d rejected transition %s -> %s", s.id, from, to)
		return false
	}
	s.state = to
	cb := s.onState
	s.mu.Unlock()

	if cb != nil {
		cb(to)
	}
	return true
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the session into StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Control returns the owning control id.
func (s *Session) Control() string {
	return s.control
}

// Underruns counts callback ticks that ran short of samples mid-stream.
func (s *Session) Underruns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underruns
}

func (s *Session) hasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
