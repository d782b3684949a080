package render

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// OutputPCM48k feeds the WebRTC playback path.
	OutputPCM48k = "pcm_48000"
	// OutputMP3 feeds the chunked audio/mpeg HTTP endpoint.
	OutputMP3 = "mp3_44100_128"
)

// ElevenLabs streams synthesized speech over the HTTP streaming endpoint.
// Chunks are forwarded as they arrive so playback can start before the
// full payload exists.
type ElevenLabs struct {
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string
	baseURL      string
	httpClient   *http.Client
}

func NewElevenLabs(apiKey, voiceID, modelID, outputFormat string) *ElevenLabs {
	if modelID == "" {
		modelID = "eleven_flash_v2_5"
	}
	if outputFormat == "" {
		outputFormat = OutputPCM48k
	}
	return &ElevenLabs{
		apiKey:       apiKey,
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		baseURL:      "https://api.elevenlabs.io",
		httpClient:   &http.Client{Timeout: 0},
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if e.apiKey == "" || e.voiceID == "" {
			errCh <- errors.New("elevenlabs: api key or voice id missing")
			return
		}
		if err := e.stream(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (e *ElevenLabs) stream(ctx context.Context, text string, pcmCh chan<- []byte) error {
	base, err := url.Parse(e.baseURL)
	if err != nil {
		return errors.Wrap(err, "elevenlabs: base url")
	}
	u := *base
	u.Path = "/v1/text-to-speech/" + e.voiceID + "/stream"
	q := u.Query()
	q.Set("model_id", e.modelID)
	q.Set("output_format", e.outputFormat)
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": e.modelID,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
		// shorter chunks reduce tail cutoff; server still streams
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{80, 120, 160, 200},
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return errors.Wrap(err, "elevenlabs: build request")
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "elevenlabs: http stream")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return errors.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if !logged {
				log.Debug().Int("bytes", n).Msg("elevenlabs: first audio chunk")
				logged = true
			}
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return errors.Wrap(rerr, "elevenlabs: read stream")
		}
	}
}
