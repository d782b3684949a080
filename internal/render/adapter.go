// Package render converts investor reply text to audible speech. A primary
// network synthesizer streams chunked audio into an AudioSink for low
// first-audio latency; when the primary fails before any audio has been
// delivered, the same text is retried through the fallback synthesizer.
package render

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrCancelled is returned from Speak when Stop interrupts playback.
var ErrCancelled = errors.New("speech rendering cancelled")

// Status is the externally observable rendering state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusSynthesizing Status = "synthesizing"
	StatusPlaying      Status = "playing"
	StatusError        Status = "error"
)

// AudioSink is the playback end of the pipeline. Write enqueues a PCM
// chunk and may block while the playback queue is full; Flush blocks
// until everything queued has been played out; Reset drops queued audio
// immediately.
type AudioSink interface {
	Write(pcm []byte) error
	Flush() error
	Reset()
}

// Synthesizer streams synthesized audio for one utterance. The audio
// channel closes when synthesis ends; the error channel carries at most
// one error and closes with it.
type Synthesizer interface {
	Name() string
	Stream(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Adapter drives one synthesizer at a time in configured order.
type Adapter struct {
	sink      AudioSink
	providers []Synthesizer

	mu            sync.Mutex
	status        Status
	active        string
	hasFallenBack bool
	cancel        context.CancelFunc
}

func New(sink AudioSink, providers []Synthesizer) *Adapter {
	return &Adapter{sink: sink, providers: providers, status: StatusIdle}
}

// Speak synthesizes and plays text, returning once playback completes.
// The primary synthesizer is re-attempted on every call; fallback happens
// only when the primary fails before any audio reached the sink, so the
// listener never hears the same utterance twice.
func (a *Adapter) Speak(ctx context.Context, text string) error {
	text = Preprocess(text)
	if text == "" {
		return nil
	}
	if len(a.providers) == 0 {
		return errors.New("no synthesizers configured")
	}

	callCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.status = StatusSynthesizing
	a.mu.Unlock()
	defer func() {
		cancel()
		a.mu.Lock()
		a.cancel = nil
		if a.status != StatusError {
			a.status = StatusIdle
		}
		a.mu.Unlock()
	}()

	var lastErr error
	for i, p := range a.providers {
		delivered, err := a.stream(callCtx, p, text)
		if err == nil {
			return nil
		}
		if callCtx.Err() != nil {
			a.sink.Reset()
			return ErrCancelled
		}
		lastErr = err
		if delivered {
			// Audio already reached the listener; retrying the whole
			// utterance through another provider would double-speak.
			log.Error().Err(err).Str("provider", p.Name()).Msg("synthesis failed mid-stream")
			a.setStatus(StatusError)
			return errors.Wrap(err, p.Name())
		}
		if i < len(a.providers)-1 {
			a.mu.Lock()
			a.hasFallenBack = true
			a.mu.Unlock()
			log.Warn().Err(err).Str("provider", p.Name()).Msg("synthesizer failed before audio, falling back")
		}
	}
	a.setStatus(StatusError)
	return errors.Wrap(lastErr, "all synthesizers failed")
}

// stream pumps one synthesizer's chunks into the sink. It reports whether
// any audio was delivered, which gates the fallback decision above.
func (a *Adapter) stream(ctx context.Context, p Synthesizer, text string) (bool, error) {
	pcmCh, errCh := p.Stream(ctx, text)

	a.mu.Lock()
	a.active = p.Name()
	a.mu.Unlock()

	delivered := false
	for chunk := range pcmCh {
		if len(chunk) == 0 {
			continue
		}
		if !delivered {
			delivered = true
			a.setStatus(StatusPlaying)
		}
		if err := a.sink.Write(chunk); err != nil {
			return delivered, errors.Wrap(err, "audio sink write")
		}
	}
	if err := <-errCh; err != nil {
		return delivered, err
	}
	if !delivered {
		return false, errors.New("synthesizer produced no audio")
	}
	return true, a.sink.Flush()
}

// Stop cancels any in-flight synthesis and halts playback. Idempotent and
// safe to call while idle.
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.status = StatusIdle
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.sink.Reset()
}

func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Adapter) ActiveProvider() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// HasFallenBack reports whether any call in this adapter's lifetime fell
// back past the primary synthesizer. It never resets to false.
func (a *Adapter) HasFallenBack() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasFallenBack
}

func (a *Adapter) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}
