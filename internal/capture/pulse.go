package capture

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PulseProvider is the primary low-latency streaming recognition backend,
// spoken to over a websocket: one JSON handshake carrying the token and
// audio parameters, then binary PCM frames up and JSON transcript events
// down.
type PulseProvider struct {
	apiKey   string
	wsURL    string
	language string
}

// NewPulse builds the provider. An empty apiKey fails at Connect, which
// triggers fallback rather than a caller-visible error.
func NewPulse(apiKey, wsURL string) *PulseProvider {
	return &PulseProvider{apiKey: apiKey, wsURL: wsURL, language: "en"}
}

func (p *PulseProvider) Name() string { return "pulse" }

// Connect dials the streaming endpoint and performs the handshake. The
// context carries the caller's connect timeout.
func (p *PulseProvider) Connect(ctx context.Context, sampleRate int) (ProviderSession, error) {
	if p.apiKey == "" {
		return nil, errors.New("pulse: api key missing")
	}

	dialer := websocket.Dialer{}
	conn, resp, err := dialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "pulse: dial failed with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "pulse: dial failed")
	}

	handshake := map[string]any{
		"token":       p.apiKey,
		"sample_rate": sampleRate,
		"language":    p.language,
	}
	if err := conn.WriteJSON(handshake); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "pulse: handshake")
	}

	s := &pulseSession{
		conn:    conn,
		results: make(chan Result, 100),
		audio:   make(chan []byte, 1000),
		stopCh:  make(chan struct{}),
	}
	go s.writeAudio()
	go s.readEvents()
	return s, nil
}

type pulseSession struct {
	conn    *websocket.Conn
	results chan Result
	audio   chan []byte
	stopCh  chan struct{}

	mu     sync.Mutex
	closed bool
}

// pulseEvent is the transcript message shape from the backend.
type pulseEvent struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

func (s *pulseSession) SendPCM16LE(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("pulse: session closed")
	}
	s.mu.Unlock()
	select {
	case s.audio <- pcm:
		return nil
	default:
		log.Debug().Msg("pulse: audio buffer full, dropping packet")
		return nil
	}
}

func (s *pulseSession) Results() <-chan Result { return s.results }

func (s *pulseSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stopCh)
	return s.conn.Close()
}

func (s *pulseSession) writeAudio() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Warn().Err(err).Msg("pulse: audio write failed")
				return
			}
		}
	}
}

func (s *pulseSession) readEvents() {
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
				log.Warn().Err(err).Msg("pulse: read failed")
			}
			return
		}
		var ev pulseEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			// Non-JSON frames (keepalives) are ignored.
			continue
		}
		if ev.Transcript == "" {
			continue
		}
		select {
		case s.results <- Result{Text: ev.Transcript, Final: ev.IsFinal}:
		case <-s.stopCh:
			return
		}
	}
}
