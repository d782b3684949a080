package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voicepitch/voicepitch/internal/config"
)

// ErrCaptureUnavailable is returned when no audio device could be acquired
// or no configured provider could be started.
var ErrCaptureUnavailable = errors.New("speech capture unavailable")

// State is the adapter's lifecycle state. Exactly one holds at a time;
// connecting is transient and bounded by the connect timeout.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateError      State = "error"
)

// Result is one recognition update from the active provider.
type Result struct {
	Text  string
	Final bool
}

// AudioSource is an acquired audio input device delivering mono float32
// frames. Acquire opens the device; Release is idempotent.
type AudioSource interface {
	Acquire(ctx context.Context) (<-chan []float32, error)
	SampleRate() int
	Release()
}

// Provider opens a streaming recognition session against one backend.
type Provider interface {
	Name() string
	Connect(ctx context.Context, sampleRate int) (ProviderSession, error)
}

// ProviderSession is one live connection to a recognition backend. It
// accepts s16le PCM and emits interim and final results until closed.
type ProviderSession interface {
	SendPCM16LE(pcm []byte) error
	Results() <-chan Result
	Close() error
}

// Callbacks are the observable events the adapter emits. All fields are
// optional. Silence signals are events, not state transitions; the caller
// decides what to do with them.
type Callbacks struct {
	OnResult         func(text string, final bool)
	OnSilenceWarning func()
	OnSilenceAutoEnd func()
}

// Adapter produces a live, incrementally refined transcription of the
// user's speech, hiding which backend is in use. It is configured with an
// ordered provider list; any failure to start an earlier provider tears
// down partial resources and transparently starts the next one.
type Adapter struct {
	source    AudioSource
	providers []Provider
	timeouts  config.Timeouts
	callbacks Callbacks

	mu            sync.Mutex
	state         State
	active        string
	hasFallenBack bool
	finalText     strings.Builder
	interim       string
	sess          ProviderSession
	cancel        context.CancelFunc
	silenceWarn   *time.Timer
	silenceEnd    *time.Timer
}

// New builds an adapter over the given device and provider chain.
func New(source AudioSource, providers []Provider, timeouts config.Timeouts, cb Callbacks) *Adapter {
	return &Adapter{
		source:    source,
		providers: providers,
		timeouts:  timeouts,
		callbacks: cb,
		state:     StateIdle,
	}
}

// Start acquires the audio device and connects the first provider that
// comes up within the connect timeout. A successful fallback is invisible
// to the caller beyond HasFallenBack; only total failure returns
// ErrCaptureUnavailable.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateListening || a.state == StateConnecting {
		a.mu.Unlock()
		return nil
	}
	if len(a.providers) == 0 {
		a.state = StateError
		a.mu.Unlock()
		return errors.Wrap(ErrCaptureUnavailable, "no providers configured")
	}
	a.state = StateConnecting
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	frames, err := a.source.Acquire(runCtx)
	if err != nil {
		cancel()
		a.setState(StateError)
		return errors.Wrap(ErrCaptureUnavailable, err.Error())
	}

	var sess ProviderSession
	var activeName string
	for i, p := range a.providers {
		connectCtx, connectCancel := context.WithTimeout(runCtx, a.timeouts.ProviderConnect)
		s, err := p.Connect(connectCtx, a.source.SampleRate())
		connectCancel()
		if err == nil {
			sess = s
			activeName = p.Name()
			if i > 0 {
				a.mu.Lock()
				a.hasFallenBack = true
				a.mu.Unlock()
				log.Warn().Str("provider", activeName).Msg("capture fell back to secondary provider")
			}
			break
		}
		log.Warn().Err(err).Str("provider", p.Name()).Msg("capture provider failed to start")
	}
	if sess == nil {
		a.source.Release()
		cancel()
		a.setState(StateError)
		return ErrCaptureUnavailable
	}

	a.mu.Lock()
	a.sess = sess
	a.active = activeName
	a.cancel = cancel
	a.state = StateListening
	a.armSilenceTimersLocked()
	a.mu.Unlock()

	go a.pumpAudio(runCtx, frames, sess)
	go a.pumpResults(runCtx, sess)

	log.Info().Str("provider", activeName).Msg("capture listening")
	return nil
}

// Stop releases the audio device and closes the provider connection.
// Idempotent; safe to call when already idle.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.state == StateIdle {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	sess := a.sess
	a.cancel = nil
	a.sess = nil
	a.active = ""
	a.state = StateIdle
	a.interim = ""
	a.stopSilenceTimersLocked()
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		_ = sess.Close()
	}
	a.source.Release()
}

// Reset clears accumulated transcript text without stopping capture.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.finalText.Reset()
	a.interim = ""
	a.mu.Unlock()
}

// FinalText returns the accumulated finalized transcript.
func (a *Adapter) FinalText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(a.finalText.String())
}

// InterimText returns the latest not-yet-finalized fragment.
func (a *Adapter) InterimText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// State reports the adapter lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ActiveProvider reports the provider currently in use, if any.
func (a *Adapter) ActiveProvider() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// HasFallenBack reports whether the adapter ever switched away from its
// preferred provider. Monotonic within a session.
func (a *Adapter) HasFallenBack() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasFallenBack
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// pumpAudio converts device frames to s16le PCM and feeds the provider.
func (a *Adapter) pumpAudio(ctx context.Context, frames <-chan []float32, sess ProviderSession) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if len(f) == 0 {
				continue
			}
			if err := sess.SendPCM16LE(Float32ToPCM16LE(f)); err != nil {
				log.Warn().Err(err).Msg("capture: dropping audio frame")
			}
		}
	}
}

func (a *Adapter) pumpResults(ctx context.Context, sess ProviderSession) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-sess.Results():
			if !ok {
				a.handleStreamClosed(ctx, sess)
				return
			}
			a.handleResult(r)
		}
	}
}

// handleStreamClosed reacts to the provider closing its results stream
// while we still believe we are listening. An intentional Stop cancels
// the run context before closing the session, so only a mid-session
// socket death lands here; the adapter moves to the error state and a
// later Start re-runs the provider chain.
func (a *Adapter) handleStreamClosed(ctx context.Context, sess ProviderSession) {
	if ctx.Err() != nil {
		return
	}
	a.mu.Lock()
	if a.sess != sess || a.state != StateListening {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	a.cancel = nil
	a.sess = nil
	active := a.active
	a.active = ""
	a.state = StateError
	a.interim = ""
	a.stopSilenceTimersLocked()
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = sess.Close()
	a.source.Release()
	log.Error().Str("provider", active).Msg("capture provider stream closed mid-session")
}

func (a *Adapter) handleResult(r Result) {
	a.mu.Lock()
	if r.Final {
		text := strings.TrimSpace(r.Text)
		if text != "" {
			if a.finalText.Len() > 0 {
				a.finalText.WriteByte(' ')
			}
			a.finalText.WriteString(text)
		}
		a.interim = ""
		a.armSilenceTimersLocked()
	} else {
		a.interim = r.Text
	}
	cb := a.callbacks.OnResult
	a.mu.Unlock()
	if cb != nil {
		cb(r.Text, r.Final)
	}
}

// armSilenceTimersLocked (re)starts the warning and auto-end timers. Fired
// timers emit events only; they never mutate adapter state.
func (a *Adapter) armSilenceTimersLocked() {
	a.stopSilenceTimersLocked()
	if warn := a.callbacks.OnSilenceWarning; warn != nil && a.timeouts.SilenceWarning > 0 {
		a.silenceWarn = time.AfterFunc(a.timeouts.SilenceWarning, warn)
	}
	if end := a.callbacks.OnSilenceAutoEnd; end != nil && a.timeouts.SilenceAutoEnd > 0 {
		a.silenceEnd = time.AfterFunc(a.timeouts.SilenceAutoEnd, end)
	}
}

func (a *Adapter) stopSilenceTimersLocked() {
	if a.silenceWarn != nil {
		a.silenceWarn.Stop()
		a.silenceWarn = nil
	}
	if a.silenceEnd != nil {
		a.silenceEnd.Stop()
		a.silenceEnd = nil
	}
}
