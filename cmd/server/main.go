package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/voicepitch/voicepitch/internal/config"
	"github.com/voicepitch/voicepitch/internal/httpserver"
	"github.com/voicepitch/voicepitch/internal/llm"
	"github.com/voicepitch/voicepitch/internal/render"
	"github.com/voicepitch/voicepitch/internal/rtc"
	"github.com/voicepitch/voicepitch/internal/scorecard"
)

var rootCmd = &cobra.Command{
	Use:   "voicepitch",
	Short: "Voice pitch simulator: practice your pitch against an AI investor",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dialogue server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	client := llm.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModelID, cfg.Timeouts.LLMRequest)
	requestor := scorecard.NewRequestor(client)
	// The HTTP synthesis endpoint ships mp3 for browser <audio> playback;
	// the WebRTC path uses its own PCM synthesizer chain.
	tts := render.NewElevenLabs(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID, render.OutputMP3)

	srv := httpserver.New(client, tts, requestor)

	rtcHandler := rtc.NewHandler(cfg)
	srv.Echo().POST("/api/rtc/offer", func(c echo.Context) error {
		var offer rtc.SessionDescription
		if err := c.Bind(&offer); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid offer"})
		}
		answer, err := rtcHandler.HandleOffer(c.Request().Context(), offer)
		if err != nil {
			log.Error().Err(err).Msg("rtc offer failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not establish call"})
		}
		return c.JSON(http.StatusOK, answer)
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.HTTPAddress); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
