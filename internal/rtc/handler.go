// Package rtc binds a live WebRTC call to the dialogue session: the
// founder's mic track feeds speech capture, investor speech plays out
// through a paced Opus track, and a control data channel carries turn
// commands and status events.
package rtc

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voicepitch/voicepitch/internal/capture"
	"github.com/voicepitch/voicepitch/internal/config"
	"github.com/voicepitch/voicepitch/internal/llm"
	"github.com/voicepitch/voicepitch/internal/render"
	"github.com/voicepitch/voicepitch/internal/scorecard"
	"github.com/voicepitch/voicepitch/internal/session"
)

// SessionDescription is a small DTO so transport handlers do not expose
// webrtc types.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// event is one server-to-client message on the control channel.
type event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Handler accepts WebRTC offers and runs one dialogue session per peer.
type Handler struct {
	cfg config.Config
}

func NewHandler(cfg config.Config) *Handler {
	return &Handler{cfg: cfg}
}

// HandleOffer accepts an SDP offer and returns an SDP answer with the
// session fully wired to the peer's audio.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return SessionDescription{}, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"investor-audio", "investor")
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}

	c := &call{cfg: h.cfg, pc: pc, outTrack: outTrack}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("state", state.String()).Msg("peer connection state")
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			c.teardown()
		}
	})
	pc.OnDataChannel(c.onDataChannel)
	pc.OnTrack(c.onTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := pc.LocalDescription()
	if local == nil {
		_ = pc.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// call is the per-peer wiring.
type call struct {
	cfg      config.Config
	pc       *webrtc.PeerConnection
	outTrack *webrtc.TrackLocalStaticSample

	sess   atomic.Pointer[session.Session]
	paced  atomic.Pointer[OpusPacedWriter]
	dc     atomic.Pointer[webrtc.DataChannel]
	closed atomic.Bool
}

// onTrack builds the whole dialogue pipeline once the founder's mic track
// arrives.
func (c *call) onTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if remote.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	log.Info().Str("codec", remote.Codec().MimeType).Msg("mic track received")

	paced, err := NewOpusPacedWriter(c.outTrack)
	if err != nil {
		log.Error().Err(err).Msg("paced writer init failed")
		return
	}
	c.paced.Store(paced)

	cfg := c.cfg
	providers := capture.OrderedProviders(cfg)
	src := newTrackSource(remote)

	cap := capture.New(src, providers, cfg.Timeouts, capture.Callbacks{
		OnResult: func(text string, final bool) {
			if s := c.sess.Load(); s != nil {
				s.OnCaptureResult(text, final)
				c.sendEvent("transcript", map[string]interface{}{"text": text, "final": final})
			}
		},
		OnSilenceWarning: func() {
			if s := c.sess.Load(); s != nil {
				s.OnSilenceWarning()
				c.sendEvent("silence-warning", nil)
			}
		},
		OnSilenceAutoEnd: func() {
			if s := c.sess.Load(); s != nil {
				c.sendEvent("silence-auto-end", nil)
				s.OnSilenceAutoEnd()
			}
		},
	})

	rend := render.New(paced, render.OrderedSynthesizers(cfg))

	client := llm.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModelID, cfg.Timeouts.LLMRequest)
	var monitor *llm.Monitor
	monitor = llm.NewMonitor(cfg.Timeouts.LLMThinking, cfg.Timeouts.LLMStalling, func(status llm.Status) {
		payload := map[string]interface{}{"status": string(status)}
		if status == llm.StatusStalling {
			payload["stallLine"] = monitor.StallLine()
		}
		c.sendEvent("thinking-status", payload)
	})
	requestor := scorecard.NewRequestor(client)

	sess := session.New(cap, rend, client, requestor, monitor, cfg.Thresholds)
	c.sess.Store(sess)
	c.sendEvent("ready", nil)
}

func (c *call) onDataChannel(dc *webrtc.DataChannel) {
	if dc.Label() != "control" {
		return
	}
	c.dc.Store(dc)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
		sess := c.sess.Load()
		if sess == nil {
			c.sendEvent("error", map[string]interface{}{"error": "session not ready"})
			return
		}
		switch cmd {
		case "start-pitch":
			go func() {
				if err := sess.StartPitch(context.Background()); err != nil {
					log.Error().Err(err).Msg("start pitch failed")
					c.sendEvent("error", map[string]interface{}{"error": "could not start listening"})
					return
				}
				c.sendState(sess)
			}()
		case "submit-turn":
			go func() {
				if err := sess.SubmitTurn(context.Background()); err != nil && !errors.Is(err, session.ErrTurnInFlight) {
					log.Error().Err(err).Msg("turn failed")
				}
				c.sendState(sess)
			}()
		case "end-session":
			go func() {
				card, err := sess.EndSession(context.Background())
				if err != nil {
					var parseErr *scorecard.ParseError
					if errors.As(err, &parseErr) {
						c.sendEvent("scorecard-error", map[string]interface{}{"error": "unparseable evaluation", "raw": parseErr.Raw})
						return
					}
					c.sendEvent("scorecard-error", map[string]interface{}{"error": "scorecard unavailable"})
					return
				}
				c.sendEvent("scorecard", card)
			}()
		case "reset":
			sess.Reset()
			c.sendState(sess)
		default:
			c.sendEvent("error", map[string]interface{}{"error": "unknown command: " + cmd})
		}
	})
}

// sendState pushes a state snapshot so the client never has to poll.
func (c *call) sendState(sess *session.Session) {
	c.sendEvent("state", map[string]interface{}{
		"phase":          string(sess.Phase()),
		"confidence":     sess.Confidence(),
		"decision":       string(sess.Decision()),
		"exchangeCount":  sess.ExchangeCount(),
		"elapsedSeconds": sess.ElapsedSeconds(),
		"silenceWarning": sess.SilenceWarning(),
		"transcript":     sess.Transcript(),
	})
}

func (c *call) sendEvent(typ string, payload interface{}) {
	dc := c.dc.Load()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}
	buf, err := json.Marshal(event{Type: typ, Payload: payload})
	if err != nil {
		return
	}
	if err := dc.SendText(string(buf)); err != nil {
		log.Debug().Err(err).Msg("control channel send failed")
	}
}

func (c *call) teardown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if s := c.sess.Load(); s != nil {
		s.Reset()
	}
	if p := c.paced.Load(); p != nil {
		p.Flush()
		time.AfterFunc(400*time.Millisecond, p.Close)
	}
	_ = c.pc.Close()
}
