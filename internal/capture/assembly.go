package capture

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// silenceThreshold is the base inactivity window required before an
// utterance is considered complete. Conservative to avoid cutting the
// speaker mid-sentence.
const silenceThreshold = 700 * time.Millisecond

// continuationExtension is added when the last word suggests the speaker
// will continue ("and", "or", "if", ...).
const continuationExtension = 1200 * time.Millisecond

// AssemblyProvider is the secondary recognition backend: the AssemblyAI v3
// streaming websocket. It only reports running full transcripts, so the
// session derives finalized deltas from inactivity.
type AssemblyProvider struct {
	apiKey string
}

func NewAssembly(apiKey string) *AssemblyProvider {
	return &AssemblyProvider{apiKey: apiKey}
}

func (p *AssemblyProvider) Name() string { return "assembly" }

func (p *AssemblyProvider) Connect(ctx context.Context, sampleRate int) (ProviderSession, error) {
	if p.apiKey == "" {
		return nil, errors.New("assembly: api key missing")
	}

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := "wss://streaming.assemblyai.com/v3/ws?" + params.Encode()

	dialer := websocket.Dialer{}
	conn, resp, err := dialer.DialContext(ctx, wsURL, map[string][]string{"Authorization": {p.apiKey}})
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "assembly: dial failed with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "assembly: dial failed")
	}

	s := &assemblySession{
		conn:    conn,
		results: make(chan Result, 100),
		audio:   make(chan []byte, 1000),
		stopCh:  make(chan struct{}),
	}
	go s.writeAudio()
	go s.readEvents()
	return s, nil
}

type assemblySession struct {
	conn    *websocket.Conn
	results chan Result
	audio   chan []byte
	stopCh  chan struct{}

	mu     sync.Mutex
	closed bool

	// utterance accumulation
	accMu          sync.Mutex
	latestFull     string
	committedFull  string
	lastUpdateTime time.Time
	silenceTimer   *time.Timer
}

// assemblyTurn is the running-transcript message from the backend.
type assemblyTurn struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

func (s *assemblySession) SendPCM16LE(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("assembly: session closed")
	}
	s.mu.Unlock()
	select {
	case s.audio <- pcm:
		return nil
	default:
		log.Debug().Msg("assembly: audio buffer full, dropping packet")
		return nil
	}
}

func (s *assemblySession) Results() <-chan Result { return s.results }

func (s *assemblySession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.accMu.Lock()
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.accMu.Unlock()
	_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
	return s.conn.Close()
}

func (s *assemblySession) writeAudio() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Warn().Err(err).Msg("assembly: audio write failed")
				return
			}
		}
	}
}

func (s *assemblySession) readEvents() {
	defer close(s.results)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				log.Warn().Err(err).Msg("assembly: read failed")
			}
			return
		}
		s.processMessage(message)
	}
}

func (s *assemblySession) processMessage(message []byte) {
	var turn assemblyTurn
	if err := json.Unmarshal(message, &turn); err != nil {
		log.Warn().Err(err).Msg("assembly: unmarshal failed")
		return
	}
	switch turn.Type {
	case "Turn":
		if turn.Transcript == "" {
			return
		}
		s.accMu.Lock()
		s.latestFull = turn.Transcript
		s.lastUpdateTime = time.Now()
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(silenceThreshold, s.finalizeDueToSilence)
		} else {
			s.silenceTimer.Stop()
			s.silenceTimer.Reset(silenceThreshold)
		}
		delta := pendingDelta(s.latestFull, s.committedFull)
		s.accMu.Unlock()
		if delta != "" {
			s.emit(Result{Text: delta, Final: false})
		}
	case "Termination":
		s.flushPendingDelta()
	case "Error":
		log.Warn().RawJSON("message", message).Msg("assembly: backend error")
	}
}

// finalizeDueToSilence fires after the inactivity threshold and emits the
// delta since the last committed transcript as a finalized result.
func (s *assemblySession) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	threshold := silenceThreshold
	if isContinuationLikely(s.latestFull) {
		threshold += continuationExtension
	}
	if since := time.Since(s.lastUpdateTime); since < threshold {
		// Not enough inactivity; push the timer out for the remainder.
		wait := threshold - since
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if s.silenceTimer != nil {
			s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}
	delta := pendingDelta(s.latestFull, s.committedFull)
	s.committedFull = s.latestFull
	s.accMu.Unlock()

	if delta == "" {
		return
	}
	s.emit(Result{Text: delta, Final: true})
}

func (s *assemblySession) flushPendingDelta() {
	s.accMu.Lock()
	delta := pendingDelta(s.latestFull, s.committedFull)
	s.committedFull = s.latestFull
	s.accMu.Unlock()
	if delta == "" {
		return
	}
	s.emit(Result{Text: delta, Final: true})
}

func (s *assemblySession) emit(r Result) {
	select {
	case s.results <- r:
	case <-s.stopCh:
	}
}

// pendingDelta returns the uncommitted tail of the running transcript.
func pendingDelta(latest, committed string) string {
	delta := strings.TrimSpace(strings.TrimPrefix(latest, committed))
	if delta == "" && committed != "" {
		if idx := strings.LastIndex(latest, committed); idx >= 0 {
			delta = strings.TrimSpace(latest[idx+len(committed):])
		}
	}
	return delta
}

// isContinuationLikely returns true if the last meaningful word indicates
// the speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// subordinating conjunctions / conditionals
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// discourse markers / fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// prepositions that are awkward sentence endings
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
