package scorecard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const evaluatorSystemPrompt = `You are a pitch evaluation expert. Analyze a startup pitch conversation and return ONLY a valid JSON object (no markdown, no backticks, no commentary before or after).

Return this exact structure:
{
  "one_sentence": "<one-sentence verdict on the pitch>",
  "scores": {
    "clarity": <0-10>, "customer_pain": <0-10>, "solution_fit": <0-10>,
    "proof": <0-10>, "growth_wedge": <0-10>, "retention": <0-10>,
    "pricing_unit_econ": <0-10>, "competition_moat": <0-10>,
    "founder_strength": <0-10>, "speed_of_iteration": <0-10>
  },
  "top_strengths": ["<strength>", ...],
  "top_risks": [{"risk": "<risk>", "evidence_quote": "<verbatim transcript quote>", "fix": "<concrete fix>"}, ...],
  "yc_style_feedback": {
    "what_i_believe_you_are_building": "<one sentence>",
    "what_i_need_to_believe_next": ["<belief>", ...],
    "next_7_days": ["<actionable step>", ...]
  }
}

Score 0 means not addressed at all, 10 means exceptional with hard evidence. Start with { and end with }.`

// Generator produces raw completion text for a system+user prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// ParseError reports that the evaluation service's output could not be
// parsed as a scorecard. Raw preserves the unparsed text for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scorecard parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Requestor formats a transcript, submits it for evaluation and parses the
// structured result out of the raw model response.
type Requestor struct {
	gen Generator
}

// NewRequestor builds a requestor over the given generator.
func NewRequestor(gen Generator) *Requestor {
	return &Requestor{gen: gen}
}

// Request evaluates the transcript. Interim entries must already have been
// excluded by the caller. A malformed model response yields a *ParseError
// carrying the raw text; transport failures are returned wrapped.
func (r *Requestor) Request(ctx context.Context, entries []Entry) (*Scorecard, error) {
	raw, err := r.gen.Generate(ctx, evaluatorSystemPrompt, "Evaluate this pitch conversation:\n\n"+FormatTranscript(entries))
	if err != nil {
		return nil, errors.Wrap(err, "scorecard request")
	}

	block, ok := extractJSON(raw)
	if !ok {
		log.Warn().Str("raw", truncate(raw, 200)).Msg("no JSON object in evaluator response")
		return nil, &ParseError{Raw: raw, Err: errors.New("no JSON object found in response")}
	}

	var sc Scorecard
	if err := json.Unmarshal([]byte(block), &sc); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	return &sc, nil
}

// FormatTranscript renders entries as a linear speaker-prefixed log.
func FormatTranscript(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Speaker)
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

// extractJSON returns the first top-level {...} block in raw. The model is
// told to emit bare JSON but often wraps it in prose or code fences.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
