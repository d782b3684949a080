package render

import "github.com/voicepitch/voicepitch/internal/config"

// OrderedSynthesizers builds the synthesizer chain from configuration for
// the 48kHz PCM playback path, preferred provider first.
func OrderedSynthesizers(cfg config.Config) []Synthesizer {
	eleven := NewElevenLabs(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID, OutputPCM48k)
	deepgram := NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramModel)
	if cfg.RenderProvider == config.RenderProviderDeepgram {
		return []Synthesizer{deepgram, eleven}
	}
	return []Synthesizer{eleven, deepgram}
}
