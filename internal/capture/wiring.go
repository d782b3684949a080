package capture

import "github.com/voicepitch/voicepitch/internal/config"

// OrderedProviders builds the provider chain from configuration, preferred
// provider first. The other provider is always kept as the fallback.
func OrderedProviders(cfg config.Config) []Provider {
	pulse := NewPulse(cfg.PulseAPIKey, cfg.PulseWSURL)
	assembly := NewAssembly(cfg.AssemblyAIKey)
	if cfg.CaptureProvider == config.CaptureProviderAssembly {
		return []Provider{assembly, pulse}
	}
	return []Provider{pulse, assembly}
}
