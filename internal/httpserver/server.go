// Package httpserver exposes the dialogue services to browser clients:
// investor chat, speech synthesis and the end-of-session scorecard.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voicepitch/voicepitch/internal/llm"
	"github.com/voicepitch/voicepitch/internal/render"
	"github.com/voicepitch/voicepitch/internal/scorecard"
)

// ChatService is the investor model boundary.
type ChatService interface {
	Chat(ctx context.Context, userMessage string, history []llm.Message) (llm.Reply, error)
}

// ScorecardService evaluates a finished transcript.
type ScorecardService interface {
	Request(ctx context.Context, entries []scorecard.Entry) (*scorecard.Scorecard, error)
}

// Server hosts the HTTP API.
type Server struct {
	echo      *echo.Echo
	chat      ChatService
	tts       render.Synthesizer
	scorecard ScorecardService
}

func New(chat ChatService, tts render.Synthesizer, sc ScorecardService) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, chat: chat, tts: tts, scorecard: sc}

	e.GET("/healthz", s.handleHealth)
	e.POST("/api/chat", s.handleChat)
	e.POST("/api/tts", s.handleTTS)
	e.POST("/api/scorecard", s.handleScorecard)
	return s
}

func (s *Server) Start(address string) error {
	log.Info().Str("address", address).Msg("http server listening")
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests and for mounting extra
// handlers (the WebRTC signaling endpoint).
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	UserMessage string        `json:"userMessage"`
	History     []llm.Message `json:"history"`
}

type chatResponse struct {
	AgentText  string `json:"agentText"`
	Confidence int    `json:"confidence"`
	Decision   string `json:"decision"`
}

// handleChat proxies one turn to the investor model. Failures degrade to
// the neutral fallback line at the default confidence so the client can
// keep the conversation alive.
func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserMessage == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "userMessage is required"})
	}

	reply, err := s.chat.Chat(c.Request().Context(), req.UserMessage, req.History)
	if err != nil {
		log.Error().Err(err).Msg("chat request failed")
		return c.JSON(http.StatusInternalServerError, chatResponse{
			AgentText:  llm.FallbackLine,
			Confidence: llm.DefaultConfidence,
			Decision:   string(llm.DecisionListening),
		})
	}
	return c.JSON(http.StatusOK, chatResponse{
		AgentText:  reply.AgentText,
		Confidence: reply.Confidence,
		Decision:   string(reply.Decision),
	})
}

type ttsRequest struct {
	Text string `json:"text"`
}

// handleTTS streams synthesized speech as chunked audio/mpeg. Chunks are
// flushed as they arrive so the client can start playback early. Upstream
// failure before the first byte maps to 502; after that the stream is
// already committed and simply ends.
func (s *Server) handleTTS(c echo.Context) error {
	var req ttsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	text := render.Preprocess(req.Text)
	if text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	ctx := c.Request().Context()
	pcmCh, errCh := s.tts.Stream(ctx, text)

	w := c.Response()
	committed := false
	for chunk := range pcmCh {
		if !committed {
			w.Header().Set(echo.HeaderContentType, "audio/mpeg")
			w.WriteHeader(http.StatusOK)
			committed = true
		}
		if _, err := w.Write(chunk); err != nil {
			return nil // client went away
		}
		w.Flush()
	}
	if err := <-errCh; err != nil {
		if committed {
			log.Warn().Err(err).Msg("tts stream ended with error after audio started")
			return nil
		}
		log.Error().Err(err).Msg("tts synthesis failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	if !committed {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "synthesizer produced no audio"})
	}
	return nil
}

type scorecardRequest struct {
	Transcript []scorecard.Entry `json:"transcript"`
}

// handleScorecard evaluates a transcript. A parse failure is recoverable
// and ships the raw model text back for diagnostic display.
func (s *Server) handleScorecard(c echo.Context) error {
	var req scorecardRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Transcript) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "transcript is required"})
	}

	card, err := s.scorecard.Request(c.Request().Context(), req.Transcript)
	if err != nil {
		var parseErr *scorecard.ParseError
		if errors.As(err, &parseErr) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "scorecard response was not valid JSON",
				"raw":   parseErr.Raw,
			})
		}
		log.Error().Err(err).Msg("scorecard request failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "scorecard unavailable"})
	}
	return c.JSON(http.StatusOK, card)
}
