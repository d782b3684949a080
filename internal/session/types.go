package session

import (
	"context"
	"time"

	"github.com/voicepitch/voicepitch/internal/llm"
	"github.com/voicepitch/voicepitch/internal/scorecard"
)

// Phase is the dialogue stage. It only moves forward, except through
// Reset which returns to landing.
type Phase string

const (
	PhaseLanding     Phase = "landing"
	PhasePitch       Phase = "pitch"
	PhaseQA          Phase = "qa"
	PhaseNegotiation Phase = "negotiation"
	PhaseScorecard   Phase = "scorecard"
)

// rank orders phases for the monotonicity guard.
func (p Phase) rank() int {
	switch p {
	case PhasePitch:
		return 1
	case PhaseQA:
		return 2
	case PhaseNegotiation:
		return 3
	case PhaseScorecard:
		return 4
	default:
		return 0
	}
}

// SamplePitch is a canned founder opener used for demos and tests.
const SamplePitch = "We're building an AI copilot for restaurant inventory. " +
	"Every week restaurants throw away about $800 of food because ordering " +
	"is done on gut feel. We connect to the POS, forecast demand, and " +
	"auto-draft supplier orders. Twelve restaurants pay us $200 a month " +
	"today and churn is zero after six months."

type Speaker string

const (
	SpeakerUser     Speaker = "user"
	SpeakerInvestor Speaker = "investor"
)

// TranscriptEntry is one utterance in the visible conversation log.
// Finalized entries are immutable; a trailing interim entry is replaced
// in place by the next interim or final entry from the same speaker.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsInterim bool      `json:"isInterim"`
}

// Capturer is the speech-to-text side of a turn.
type Capturer interface {
	Start(ctx context.Context) error
	Stop()
	Reset()
	FinalText() string
	ActiveProvider() string
	HasFallenBack() bool
}

// Renderer is the text-to-speech side of a turn.
type Renderer interface {
	Speak(ctx context.Context, text string) error
	Stop()
	ActiveProvider() string
	HasFallenBack() bool
}

// Agent is the investor language model.
type Agent interface {
	Chat(ctx context.Context, userMessage string, history []llm.Message) (llm.Reply, error)
}

// Evaluator produces the end-of-session scorecard.
type Evaluator interface {
	Request(ctx context.Context, entries []scorecard.Entry) (*scorecard.Scorecard, error)
}
