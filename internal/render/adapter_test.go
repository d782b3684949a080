package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type fakeSink struct {
	mu       sync.Mutex
	writes   [][]byte
	flushes  int
	resets   int
	writeErr error
}

func (s *fakeSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, pcm)
	return nil
}
func (s *fakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}
func (s *fakeSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

type fakeSynth struct {
	name   string
	chunks [][]byte
	err    error
	calls  int
}

func (f *fakeSynth) Name() string { return f.name }
func (f *fakeSynth) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	f.calls++
	pcmCh := make(chan []byte, len(f.chunks)+1)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		for _, c := range f.chunks {
			pcmCh <- c
		}
		if f.err != nil {
			errCh <- f.err
		}
	}()
	return pcmCh, errCh
}

func TestSpeak_PrimarySucceeds(t *testing.T) {
	sink := &fakeSink{}
	primary := &fakeSynth{name: "elevenlabs", chunks: [][]byte{{1, 2}, {3, 4}}}
	fallback := &fakeSynth{name: "deepgram"}
	a := New(sink, []Synthesizer{primary, fallback})

	if err := a.Speak(context.Background(), "hello founder"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if len(sink.writes) != 2 || sink.flushes != 1 {
		t.Fatalf("writes=%d flushes=%d", len(sink.writes), sink.flushes)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not run when primary succeeds")
	}
	if a.HasFallenBack() {
		t.Fatalf("hasFallenBack should stay false")
	}
	if a.Status() != StatusIdle {
		t.Fatalf("expected idle after playback, got %s", a.Status())
	}
}

func TestSpeak_FallsBackBeforeAudio(t *testing.T) {
	sink := &fakeSink{}
	primary := &fakeSynth{name: "elevenlabs", err: errors.New("429")}
	fallback := &fakeSynth{name: "deepgram", chunks: [][]byte{{9}}}
	a := New(sink, []Synthesizer{primary, fallback})

	if err := a.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("expected transparent fallback, got %v", err)
	}
	if !a.HasFallenBack() {
		t.Fatalf("expected hasFallenBack true")
	}
	if len(sink.writes) != 1 {
		t.Fatalf("expected fallback audio delivered, writes=%d", len(sink.writes))
	}
	if a.ActiveProvider() != "deepgram" {
		t.Fatalf("active = %q", a.ActiveProvider())
	}
}

func TestSpeak_RetriesPrimaryNextCall(t *testing.T) {
	sink := &fakeSink{}
	primary := &fakeSynth{name: "elevenlabs", err: errors.New("timeout")}
	fallback := &fakeSynth{name: "deepgram", chunks: [][]byte{{9}}}
	a := New(sink, []Synthesizer{primary, fallback})

	_ = a.Speak(context.Background(), "one")
	_ = a.Speak(context.Background(), "two")
	if primary.calls != 2 {
		t.Fatalf("primary should be re-attempted each call, got %d", primary.calls)
	}
	if !a.HasFallenBack() {
		t.Fatalf("hasFallenBack must stay true across calls")
	}
}

func TestSpeak_NoDoubleSpeakAfterMidStreamFailure(t *testing.T) {
	sink := &fakeSink{}
	primary := &fakeSynth{name: "elevenlabs", chunks: [][]byte{{1, 2}}, err: errors.New("stream reset")}
	fallback := &fakeSynth{name: "deepgram", chunks: [][]byte{{9}}}
	a := New(sink, []Synthesizer{primary, fallback})

	err := a.Speak(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error after mid-stream failure")
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback must not replay an utterance the listener already heard")
	}
	if a.Status() != StatusError {
		t.Fatalf("expected error status, got %s", a.Status())
	}
}

func TestSpeak_AllFail(t *testing.T) {
	sink := &fakeSink{}
	a := New(sink, []Synthesizer{
		&fakeSynth{name: "elevenlabs", err: errors.New("down")},
		&fakeSynth{name: "deepgram", err: errors.New("also down")},
	})
	if err := a.Speak(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error when every synthesizer fails")
	}
	if a.Status() != StatusError {
		t.Fatalf("expected error status, got %s", a.Status())
	}
}

func TestSpeak_EmptyTextNoOp(t *testing.T) {
	primary := &fakeSynth{name: "elevenlabs"}
	a := New(&fakeSink{}, []Synthesizer{primary})
	if err := a.Speak(context.Background(), "   "); err != nil {
		t.Fatalf("empty text: %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("empty text must not reach a synthesizer")
	}
}

type hangingSynth struct{ started chan struct{} }

func (h *hangingSynth) Name() string { return "hanging" }
func (h *hangingSynth) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		close(h.started)
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
	return pcmCh, errCh
}

func TestStop_CancelsInFlightSpeak(t *testing.T) {
	sink := &fakeSink{}
	h := &hangingSynth{started: make(chan struct{})}
	a := New(sink, []Synthesizer{h})

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "hello") }()
	<-h.started
	a.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("speak did not return after stop")
	}
	if sink.resets == 0 {
		t.Fatalf("expected sink reset on stop")
	}
	a.Stop() // idempotent
}

func TestElevenLabs_StreamsHTTPBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.URL.Query().Get("output_format"); got != OutputPCM48k {
			t.Errorf("output_format = %q", got)
		}
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	e := NewElevenLabs("key", "voice", "", OutputPCM48k)
	e.baseURL = srv.URL

	pcmCh, errCh := e.Stream(context.Background(), "hello")
	var total int
	for chunk := range pcmCh {
		total += len(chunk)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream: %v", err)
	}
	if total != len("audio-bytes") {
		t.Fatalf("got %d bytes", total)
	}
}

func TestElevenLabs_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewElevenLabs("key", "voice", "", "")
	e.baseURL = srv.URL

	pcmCh, errCh := e.Stream(context.Background(), "hello")
	for range pcmCh {
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected error on non-2xx status")
	}
}
