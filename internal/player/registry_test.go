package player

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/civicvoice/bylaw-tts/internal/audio"
	"github.com/civicvoice/bylaw-tts/internal/speech"
)

// ttsServer serves one header line plus a short PCM tail. With hold set the
// handler keeps the stream open until the client goes away, modelling an
// utterance still being synthesized.
func ttsServer(t *testing.T, hold bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write(headerLine())
		_, _ = w.Write(pcmBytes(4800, 200))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// outputCollector hands out fake devices and remembers them so tests can
// drive the callbacks of whichever session owns each one.
type outputCollector struct {
	mu      sync.Mutex
	outputs []*fakeOutput
}

func (c *outputCollector) factory() (audio.Output, error) {
	out := newFakeOutput(testRate, 1024)
	c.mu.Lock()
	c.outputs = append(c.outputs, out)
	c.mu.Unlock()
	return out, nil
}

func (c *outputCollector) get(i int) *fakeOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs[i]
}

func newTestRegistry(t *testing.T, srv *httptest.Server) (*Registry, *outputCollector) {
	t.Helper()
	col := &outputCollector{}
	client := speech.NewClient(srv.URL, 0)
	return NewRegistry(client, col.factory, testRate, nil), col
}

func TestRegistry_ReplacesSessionOnSameControl(t *testing.T) {
	srv := ttsServer(t, true)
	reg, _ := newTestRegistry(t, srv)
	defer reg.StopAll()

	first, err := reg.Speak(context.Background(), "play-answer", "first utterance")
	if err != nil {
		t.Fatalf("first speak failed: %v", err)
	}

	second, err := reg.Speak(context.Background(), "play-answer", "second utterance")
	if err != nil {
		t.Fatalf("second speak failed: %v", err)
	}

	// The first session must be fully torn down before the second owns the
	// control.
	select {
	case <-first.Done():
	default:
		t.Fatalf("expected the first session stopped by the second speak")
	}
	if got := first.State(); got != StateStopped {
		t.Errorf("expected first session stopped, got %s", got)
	}

	select {
	case <-second.Done():
		t.Fatalf("the replacement session must keep running")
	default:
	}

	reg.Stop("play-answer")
	<-second.Done()
	if got := reg.State("play-answer"); got != StateIdle {
		t.Errorf("expected control idle after stop, got %s", got)
	}
}

func TestRegistry_ControlsAreIndependent(t *testing.T) {
	srv := ttsServer(t, true)
	reg, _ := newTestRegistry(t, srv)
	defer reg.StopAll()

	a, err := reg.Speak(context.Background(), "control-a", "noise by-law summary")
	if err != nil {
		t.Fatalf("speak a failed: %v", err)
	}
	b, err := reg.Speak(context.Background(), "control-b", "parking by-law summary")
	if err != nil {
		t.Fatalf("speak b failed: %v", err)
	}

	reg.Stop("control-a")
	<-a.Done()

	if got := reg.State("control-a"); got != StateIdle {
		t.Errorf("expected control-a idle, got %s", got)
	}
	select {
	case <-b.Done():
		t.Fatalf("stopping control-a must not touch control-b")
	default:
	}
	if got := reg.State("control-b"); got == StateIdle || got == StateStopped {
		t.Errorf("expected control-b still active, got %s", got)
	}

	reg.Stop("control-b")
	<-b.Done()
}

func TestRegistry_CompletionReleasesControl(t *testing.T) {
	srv := ttsServer(t, false)
	reg, col := newTestRegistry(t, srv)

	s, err := reg.Speak(context.Background(), "play-answer", "short answer")
	if err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	waitFor(t, "stream fully queued", func() bool { return s.isComplete() })

	out := col.get(0)
	for i := 0; i < 10; i++ {
		out.Tick()
	}
	<-s.Done()

	if got := reg.State("play-answer"); got != StateIdle {
		t.Errorf("expected control idle after completion, got %s", got)
	}
}

func TestRegistry_EndpointErrorSurfacesAndReleases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "synthesis backend down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	reg, _ := newTestRegistry(t, srv)

	_, err := reg.Speak(context.Background(), "play-answer", "anything")
	if err == nil {
		t.Fatalf("expected an error from a 500 endpoint")
	}
	var statusErr *speech.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status error 500, got %v", err)
	}

	// The failed session must not linger on the control.
	if got := reg.State("play-answer"); got != StateIdle {
		t.Errorf("expected control idle after a failed speak, got %s", got)
	}
}

func TestRegistry_EmptyTextRejected(t *testing.T) {
	srv := ttsServer(t, true)
	reg, _ := newTestRegistry(t, srv)

	_, err := reg.Speak(context.Background(), "play-answer", "   ")
	if !errors.Is(err, speech.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if got := reg.State("play-answer"); got != StateIdle {
		t.Errorf("expected control idle, got %s", got)
	}
}

func TestRegistry_StateForUnknownControl(t *testing.T) {
	srv := ttsServer(t, true)
	reg, _ := newTestRegistry(t, srv)

	if got := reg.State("never-used"); got != StateIdle {
		t.Errorf("expected idle for an unknown control, got %s", got)
	}
}

func TestRegistry_StopUnknownControlIsNoop(t *testing.T) {
	srv := ttsServer(t, true)
	reg, _ := newTestRegistry(t, srv)

	reg.Stop("never-used")
	reg.StopAll()
}
