package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("STT_PROVIDER", "")
	os.Setenv("TTS_PROVIDER", "")
	os.Setenv("LLM_MODEL_ID", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.CaptureProvider != CaptureProviderPulse {
		t.Fatalf("expected pulse capture default, got %q", cfg.CaptureProvider)
	}
	if cfg.RenderProvider != RenderProviderElevenLabs {
		t.Fatalf("expected elevenlabs render default, got %q", cfg.RenderProvider)
	}
	if cfg.LLMModelID == "" {
		t.Fatalf("expected default llm model id")
	}
	if cfg.Timeouts.ProviderConnect != 5*time.Second {
		t.Fatalf("expected 5s connect budget, got %v", cfg.Timeouts.ProviderConnect)
	}
	if cfg.Thresholds.Negotiation != 2 || cfg.Thresholds.Scorecard != 3 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Thresholds)
	}
}

func TestLoad_ProviderOverride(t *testing.T) {
	os.Setenv("STT_PROVIDER", CaptureProviderAssembly)
	os.Setenv("TTS_PROVIDER", RenderProviderDeepgram)
	defer os.Unsetenv("STT_PROVIDER")
	defer os.Unsetenv("TTS_PROVIDER")
	cfg := Load()
	if cfg.CaptureProvider != CaptureProviderAssembly {
		t.Fatalf("expected assembly override, got %q", cfg.CaptureProvider)
	}
	if cfg.RenderProvider != RenderProviderDeepgram {
		t.Fatalf("expected deepgram override, got %q", cfg.RenderProvider)
	}
}

func TestLoad_SilenceOverrides(t *testing.T) {
	os.Setenv("SILENCE_WARNING_SECONDS", "7")
	os.Setenv("SILENCE_AUTO_END_SECONDS", "bogus")
	defer os.Unsetenv("SILENCE_WARNING_SECONDS")
	defer os.Unsetenv("SILENCE_AUTO_END_SECONDS")
	cfg := Load()
	if cfg.Timeouts.SilenceWarning != 7*time.Second {
		t.Fatalf("expected 7s warning, got %v", cfg.Timeouts.SilenceWarning)
	}
	if cfg.Timeouts.SilenceAutoEnd != 15*time.Second {
		t.Fatalf("expected invalid override ignored, got %v", cfg.Timeouts.SilenceAutoEnd)
	}
}
