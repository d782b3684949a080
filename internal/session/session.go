// Package session owns the dialogue state machine for one founder pitch:
// phase progression, transcript and model history, investor confidence,
// and the turn cycle tying capture, the investor model, and rendering
// together.
package session

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voicepitch/voicepitch/internal/config"
	"github.com/voicepitch/voicepitch/internal/llm"
	"github.com/voicepitch/voicepitch/internal/render"
	"github.com/voicepitch/voicepitch/internal/scorecard"
)

// ErrTurnInFlight is returned when SubmitTurn is called while a previous
// turn is still being processed. Turns are strictly sequential.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// DefaultConfidence is the neutral baseline set at startPitch.
const DefaultConfidence = llm.DefaultConfidence

// Session drives one founder-vs-investor conversation.
type Session struct {
	capture    Capturer
	render     Renderer
	agent      Agent
	evaluator  Evaluator
	monitor    *llm.Monitor
	thresholds config.PhaseThresholds

	mu             sync.Mutex
	id             string
	phase          Phase
	transcript     []TranscriptEntry
	history        []llm.Message
	exchangeCount  int
	elapsedSeconds int
	confidence     int
	decision       llm.Decision
	silenceWarning bool
	processing     bool
	pendingUserID  string
	tickerStop     chan struct{}

	rng *rand.Rand
}

func New(capture Capturer, render Renderer, agent Agent, evaluator Evaluator, monitor *llm.Monitor, thresholds config.PhaseThresholds) *Session {
	return &Session{
		capture:    capture,
		render:     render,
		agent:      agent,
		evaluator:  evaluator,
		monitor:    monitor,
		thresholds: thresholds,
		id:         uuid.NewString(),
		phase:      PhaseLanding,
		confidence: DefaultConfidence,
		decision:   llm.DecisionListening,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// StartPitch clears all session state, sets the neutral confidence
// baseline, moves to the pitch phase and begins listening.
func (s *Session) StartPitch(ctx context.Context) error {
	s.mu.Lock()
	s.id = uuid.NewString()
	s.phase = PhasePitch
	s.transcript = nil
	s.history = nil
	s.exchangeCount = 0
	s.elapsedSeconds = 0
	s.confidence = DefaultConfidence
	s.decision = llm.DecisionListening
	s.silenceWarning = false
	s.pendingUserID = ""
	s.startTickerLocked()
	id := s.id
	s.mu.Unlock()

	log.Info().Str("session", id).Msg("pitch started")
	return s.capture.Start(ctx)
}

// SubmitTurn runs one full turn: accumulated capture text goes to the
// investor model, the reply is spoken, and capture resumes unless the
// session reached the scorecard phase. An empty capture buffer is a
// no-op.
func (s *Session) SubmitTurn(ctx context.Context) error {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	if s.phase == PhaseScorecard || s.phase == PhaseLanding {
		s.mu.Unlock()
		return nil
	}
	s.processing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	userText := strings.TrimSpace(s.capture.FinalText())
	if userText == "" {
		return nil
	}

	s.capture.Stop()
	s.mu.Lock()
	s.silenceWarning = false
	s.upsertUserEntryLocked(userText, false)
	s.pendingUserID = ""
	history := append([]llm.Message(nil), s.history...)
	s.history = append(s.history, llm.Message{Role: "user", Content: userText})
	sessionID := s.id
	s.mu.Unlock()
	if s.monitor != nil {
		defer s.monitor.Stop()
		s.monitor.Start()
	}

	reply, err := s.agent.Chat(ctx, userText, history)
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if err != nil {
		// Degrade to a stalling line and keep the conversation alive.
		// Confidence and exchange count do not move.
		log.Error().Err(err).Str("session", sessionID).Msg("investor model call failed")
		s.appendInvestor(llm.FallbackLine)
		s.speak(ctx, llm.FallbackLine)
		if s.Phase() != PhaseScorecard {
			s.capture.Reset()
			return s.capture.Start(ctx)
		}
		return nil
	}

	s.mu.Lock()
	s.confidence = reply.Confidence
	s.decision = reply.Decision
	s.history = append(s.history, llm.Message{Role: "assistant", Content: reply.AgentText})
	s.appendTranscriptLocked(SpeakerInvestor, reply.AgentText)
	s.exchangeCount++
	folded := reply.Confidence <= llm.FoldThreshold
	if folded {
		s.phase = PhaseScorecard
	} else {
		s.advancePhaseLocked()
	}
	phase := s.phase
	s.mu.Unlock()

	log.Info().
		Str("session", sessionID).
		Str("phase", string(phase)).
		Int("confidence", reply.Confidence).
		Str("decision", string(reply.Decision)).
		Msg("investor replied")

	s.speak(ctx, reply.AgentText)

	if folded {
		// The investor walks: deliver the rejection and stop listening.
		dismissal := llm.DismissalScripts[s.rng.Intn(len(llm.DismissalScripts))]
		s.appendInvestor(dismissal)
		s.speak(ctx, dismissal)
		return nil
	}
	if phase == PhaseScorecard {
		return nil
	}
	s.capture.Reset()
	return s.capture.Start(ctx)
}

// EndSession stops capture and playback, forces the scorecard phase and
// submits the transcript for evaluation.
func (s *Session) EndSession(ctx context.Context) (*scorecard.Scorecard, error) {
	s.capture.Stop()
	s.render.Stop()
	if s.monitor != nil {
		s.monitor.Stop()
	}

	s.mu.Lock()
	s.phase = PhaseScorecard
	s.stopTickerLocked()
	entries := make([]scorecard.Entry, 0, len(s.transcript))
	for _, e := range s.transcript {
		if e.IsInterim {
			continue
		}
		entries = append(entries, scorecard.Entry{Speaker: string(e.Speaker), Text: e.Text})
	}
	sessionID := s.id
	s.mu.Unlock()

	card, err := s.evaluator.Request(ctx, entries)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("scorecard request failed")
		return nil, err
	}
	return card, nil
}

// Reset tears everything down and returns to the landing phase.
func (s *Session) Reset() {
	s.capture.Stop()
	s.render.Stop()
	if s.monitor != nil {
		s.monitor.Stop()
	}

	s.mu.Lock()
	s.stopTickerLocked()
	s.id = uuid.NewString()
	s.phase = PhaseLanding
	s.transcript = nil
	s.history = nil
	s.exchangeCount = 0
	s.elapsedSeconds = 0
	s.confidence = DefaultConfidence
	s.decision = llm.DecisionListening
	s.silenceWarning = false
	s.pendingUserID = ""
	s.mu.Unlock()
}

// OnCaptureResult feeds recognition updates into the transcript. The
// utterance being captured occupies one trailing entry that is refined in
// place; a final result marks it finalized so EndSession keeps it even if
// the founder never submits the turn.
func (s *Session) OnCaptureResult(text string, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if final {
		s.silenceWarning = false
	}
	combined := strings.TrimSpace(s.capture.FinalText())
	if !final && text != "" {
		if combined != "" {
			combined += " " + text
		} else {
			combined = text
		}
	}
	if combined == "" {
		return
	}
	s.upsertUserEntryLocked(combined, !final)
}

// OnSilenceWarning marks the UI-facing warning flag; it clears on the
// next finalized speech or turn submission.
func (s *Session) OnSilenceWarning() {
	s.mu.Lock()
	s.silenceWarning = true
	s.mu.Unlock()
}

// OnSilenceAutoEnd behaves as if the founder pressed submit, forcing
// whatever partial text exists through a turn. With an empty buffer it
// is a no-op.
func (s *Session) OnSilenceAutoEnd() {
	if err := s.SubmitTurn(context.Background()); err != nil && !errors.Is(err, ErrTurnInFlight) {
		log.Error().Err(err).Msg("silence auto-end turn failed")
	}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Confidence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confidence
}

func (s *Session) Decision() llm.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision
}

func (s *Session) ExchangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchangeCount
}

func (s *Session) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedSeconds
}

func (s *Session) SilenceWarning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silenceWarning
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Transcript returns a copy of the conversation log.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptEntry(nil), s.transcript...)
}

// History returns a copy of the model-facing message list.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// speak renders one investor utterance and waits for playback, so capture
// never restarts while the speaker is live. Cancellation is not an error
// here; anything else is logged and swallowed, a lost utterance does not
// end the session.
func (s *Session) speak(ctx context.Context, text string) {
	err := s.render.Speak(ctx, text)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, render.ErrCancelled) {
		log.Error().Err(err).Msg("speech rendering failed")
	}
}

func (s *Session) appendInvestor(text string) {
	s.mu.Lock()
	s.history = append(s.history, llm.Message{Role: "assistant", Content: text})
	s.appendTranscriptLocked(SpeakerInvestor, text)
	s.mu.Unlock()
}

func (s *Session) appendTranscriptLocked(speaker Speaker, text string) {
	s.transcript = append(s.transcript, TranscriptEntry{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// upsertUserEntryLocked writes the utterance currently being captured.
// While pendingUserID names the trailing entry it is updated in place
// whether interim or already finalized, so a turn submission never
// duplicates speech the recognizer finalized first. The entry id is
// stable across replacements.
func (s *Session) upsertUserEntryLocked(text string, interim bool) {
	if n := len(s.transcript); n > 0 && s.pendingUserID != "" {
		last := &s.transcript[n-1]
		if last.ID == s.pendingUserID {
			last.Text = text
			last.Timestamp = time.Now()
			last.IsInterim = interim
			return
		}
	}
	s.pendingUserID = uuid.NewString()
	s.transcript = append(s.transcript, TranscriptEntry{
		ID:        s.pendingUserID,
		Speaker:   SpeakerUser,
		Text:      text,
		Timestamp: time.Now(),
		IsInterim: interim,
	})
}

// advancePhaseLocked recomputes phase from exchange count. Phases never
// move backwards.
func (s *Session) advancePhaseLocked() {
	next := PhasePitch
	switch {
	case s.exchangeCount >= s.thresholds.Scorecard:
		next = PhaseScorecard
	case s.exchangeCount >= s.thresholds.Negotiation:
		next = PhaseNegotiation
	case s.exchangeCount >= 1:
		next = PhaseQA
	}
	if next.rank() > s.phase.rank() {
		s.phase = next
	}
}

func (s *Session) startTickerLocked() {
	s.stopTickerLocked()
	stop := make(chan struct{})
	s.tickerStop = stop
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s.mu.Lock()
				s.elapsedSeconds++
				s.mu.Unlock()
			}
		}
	}()
}

func (s *Session) stopTickerLocked() {
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
}
