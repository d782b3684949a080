package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Provider identifiers accepted in STT_PROVIDER / TTS_PROVIDER overrides.
const (
	CaptureProviderPulse     = "pulse"
	CaptureProviderAssembly  = "assembly"
	RenderProviderElevenLabs = "elevenlabs"
	RenderProviderDeepgram   = "deepgram"
)

// Timeouts groups every timer the dialogue core schedules. Zero values are
// replaced with defaults at load time.
type Timeouts struct {
	ProviderConnect time.Duration // capture provider connect attempt budget
	SilenceWarning  time.Duration // no finalized speech before warning fires
	SilenceAutoEnd  time.Duration // total silence before auto turn submission
	LLMThinking     time.Duration // outstanding model call before "thinking"
	LLMStalling     time.Duration // outstanding model call before "stalling"
	LLMRequest      time.Duration // hard deadline on a model call
}

// PhaseThresholds maps completed investor replies to phase transitions.
type PhaseThresholds struct {
	Negotiation int
	Scorecard   int
}

// Config holds application configuration. It is built once at startup and
// passed explicitly into constructors; nothing is read lazily from the
// environment mid-session.
type Config struct {
	HTTPAddress string

	// Language model (OpenAI-compatible chat completions endpoint).
	LLMAPIKey  string
	LLMBaseURL string
	LLMModelID string

	// Speech capture.
	CaptureProvider string
	PulseAPIKey     string
	PulseWSURL      string
	AssemblyAIKey   string

	// Speech rendering.
	RenderProvider    string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	DeepgramAPIKey    string
	DeepgramModel     string

	Timeouts   Timeouts
	Thresholds PhaseThresholds
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	llmKey := os.Getenv("GROQ_API_KEY")
	if llmKey == "" {
		log.Warn().Msg("GROQ_API_KEY not set - investor replies will not work")
	}
	llmBase := os.Getenv("LLM_BASE_URL")
	if llmBase == "" {
		llmBase = "https://api.groq.com/openai/v1"
	}
	llmModel := os.Getenv("LLM_MODEL_ID")
	if llmModel == "" {
		llmModel = "llama-3.3-70b-versatile"
	}

	captureProvider := os.Getenv("STT_PROVIDER")
	if captureProvider != CaptureProviderAssembly {
		captureProvider = CaptureProviderPulse
	}
	pulseKey := os.Getenv("PULSE_API_KEY")
	pulseURL := os.Getenv("PULSE_WS_URL")
	if pulseURL == "" {
		pulseURL = "wss://waves-api.smallest.ai/api/v1/pulse/get_text"
	}
	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if pulseKey == "" && assemblyKey == "" {
		log.Warn().Msg("no STT provider key set - transcription will not work")
	}

	renderProvider := os.Getenv("TTS_PROVIDER")
	if renderProvider != RenderProviderDeepgram {
		renderProvider = RenderProviderElevenLabs
	}
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	if voiceID == "" {
		voiceID = "pNInz6obpgDQGcFmaJgB"
	}
	elevenModel := os.Getenv("ELEVENLABS_MODEL_ID")
	if elevenModel == "" {
		elevenModel = "eleven_turbo_v2_5"
	}
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	deepgramModel := os.Getenv("DEEPGRAM_MODEL")
	if elevenKey == "" && deepgramKey == "" {
		log.Warn().Msg("no TTS provider key set - speech synthesis will not work")
	}

	cfg := Config{
		HTTPAddress:       addr,
		LLMAPIKey:         llmKey,
		LLMBaseURL:        llmBase,
		LLMModelID:        llmModel,
		CaptureProvider:   captureProvider,
		PulseAPIKey:       pulseKey,
		PulseWSURL:        pulseURL,
		AssemblyAIKey:     assemblyKey,
		RenderProvider:    renderProvider,
		ElevenLabsKey:     elevenKey,
		ElevenLabsVoiceID: voiceID,
		ElevenLabsModelID: elevenModel,
		DeepgramAPIKey:    deepgramKey,
		DeepgramModel:     deepgramModel,
		Timeouts:          DefaultTimeouts(),
		Thresholds:        DefaultThresholds(),
	}

	if v := envSeconds("SILENCE_WARNING_SECONDS"); v > 0 {
		cfg.Timeouts.SilenceWarning = v
	}
	if v := envSeconds("SILENCE_AUTO_END_SECONDS"); v > 0 {
		cfg.Timeouts.SilenceAutoEnd = v
	}

	log.Info().
		Str("http_address", addr).
		Str("stt_provider", captureProvider).
		Str("tts_provider", renderProvider).
		Str("llm_model", llmModel).
		Msg("config loaded")
	return cfg
}

// DefaultTimeouts returns the recommended timer values.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ProviderConnect: 5 * time.Second,
		SilenceWarning:  5 * time.Second,
		SilenceAutoEnd:  15 * time.Second,
		LLMThinking:     8 * time.Second,
		LLMStalling:     15 * time.Second,
		LLMRequest:      30 * time.Second,
	}
}

// DefaultThresholds returns the exchange-count phase transition table.
func DefaultThresholds() PhaseThresholds {
	return PhaseThresholds{Negotiation: 2, Scorecard: 3}
}

func envSeconds(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("ignoring invalid duration override")
		return 0
	}
	return time.Duration(n) * time.Second
}
