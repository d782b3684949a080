package llm

import (
	"regexp"
	"strconv"
	"strings"
)

// Decision is the investor's coarse read of the conversation, reported
// in-band by the model alongside a confidence value.
type Decision string

const (
	DecisionListening Decision = "LISTENING"
	DecisionLeaningIn Decision = "LEANING_IN"
	DecisionInvest    Decision = "INVEST"
	DecisionPass      Decision = "PASS"
)

// Defaults applied when the marker is absent or malformed.
const (
	DefaultConfidence = 50
	defaultDecision   = DecisionListening
)

// Reply is one investor turn with the marker parsed out.
type Reply struct {
	AgentText  string
	Confidence int
	Decision   Decision
}

var (
	confidenceRe = regexp.MustCompile(`\[CONFIDENCE:(\d{1,3})\]`)
	decisionRe   = regexp.MustCompile(`\[DECISION:(LISTENING|LEANING_IN|INVEST|PASS)\]`)
	stripRe      = regexp.MustCompile(`\s*\[(?:CONFIDENCE:\d+|DECISION:\w+)\]\s*`)
)

// ParseMarker extracts the [CONFIDENCE:NN][DECISION:TAG] marker from raw
// model output, strips it from the spoken text, clamps confidence to
// [0,100] and reconciles the decision tag with the confidence value.
func ParseMarker(raw string) Reply {
	r := Reply{Confidence: DefaultConfidence, Decision: defaultDecision}

	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			r.Confidence = ClampConfidence(n)
		}
	}
	if m := decisionRe.FindStringSubmatch(raw); m != nil {
		r.Decision = Decision(m[1])
	}

	r.AgentText = strings.TrimSpace(stripRe.ReplaceAllString(raw, " "))
	r.Decision = Reconcile(r.Confidence, r.Decision)
	return r
}

// ClampConfidence bounds a reported confidence to [0,100].
func ClampConfidence(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// Reconcile forces the decision tag to be consistent with confidence:
// confidence at or below 20 always means PASS, and confidence at or above
// 80 upgrades a lingering LISTENING to LEANING_IN. The two ranges are
// disjoint, so application order is unobservable.
func Reconcile(confidence int, decision Decision) Decision {
	if confidence <= FoldThreshold {
		return DecisionPass
	}
	if confidence >= 80 && decision == DecisionListening {
		return DecisionLeaningIn
	}
	return decision
}

// FoldThreshold is the confidence at or below which the investor walks.
const FoldThreshold = 20
