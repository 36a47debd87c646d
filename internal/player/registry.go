package player

import (
	"context"
	"io"
	"sync"

	"github.com/civicvoice/bylaw-tts/internal/audio"
	"github.com/civicvoice/bylaw-tts/internal/logging"
	"github.com/civicvoice/bylaw-tts/internal/speech"
)

// OutputFactory opens a fresh output device for a session. Each session owns
// its device for its whole lifetime.
type OutputFactory func() (audio.Output, error)

// Registry tracks at most one active session per UI control. It is owned by
// the composition root and handed to whatever drives playback; there is no
// package-global session state.
type Registry struct {
	client     *speech.Client
	openOutput OutputFactory
	sourceRate int
	onState    func(control string, st State)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. onState, if non-nil, receives every
// lifecycle transition tagged with the owning control id; it must not block.
func NewRegistry(client *speech.Client, openOutput OutputFactory, sourceRate int, onState func(string, State)) *Registry {
	return &Registry{
		client:     client,
		openOutput: openOutput,
		sourceRate: sourceRate,
		onState:    onState,
		sessions:   make(map[string]*Session),
	}
}

// Speak starts playback of text for the given control. Any session already
// active on that control is fully stopped first; sessions on other controls
// are untouched. The returned error covers setup and pre-playback transport
// failures; the session is already torn down when one is returned.
func (r *Registry) Speak(ctx context.Context, control, text string) (*Session, error) {
	r.Stop(control)

	s := newSession(Params{
		Control:    control,
		SourceRate: r.sourceRate,
		OpenOutput: r.openOutput,
		OpenStream: func(ctx context.Context) (io.ReadCloser, error) {
			stream, err := r.client.Stream(ctx, text)
			if err != nil {
				return nil, err
			}
			return stream, nil
		},
		Resampler: audio.NewLinearResampler(),
		OnState: func(st State) {
			if r.onState != nil {
				r.onState(control, st)
			}
		},
		onDone: func(done *Session) {
			r.remove(control, done)
		},
	})

	r.mu.Lock()
	r.sessions[control] = s
	r.mu.Unlock()

	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Stop cancels the active session for a control, if any. A no-op for
// controls with nothing playing.
func (r *Registry) Stop(control string) {
	r.mu.Lock()
	s := r.sessions[control]
	r.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// StopAll cancels every active session.
func (r *Registry) StopAll() {
	r.mu.Lock()
	active := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	r.mu.Unlock()

	for _, s := range active {
		s.Stop()
	}
}

// State reports the lifecycle state for a control; Idle when the control has
// no session (including after completion, stop, or a surfaced error).
func (r *Registry) State(control string) State {
	r.mu.Lock()
	s := r.sessions[control]
	r.mu.Unlock()

	if s == nil {
		return StateIdle
	}
	return s.State()
}

func (r *Registry) remove(control string, done *Session) {
	r.mu.Lock()
	if r.sessions[control] == done {
		delete(r.sessions, control)
	}
	r.mu.Unlock()
	logging.Debugf("player: control %q released session %d", control, done.id)
}
