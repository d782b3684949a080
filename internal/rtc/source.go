package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	opus "gopkg.in/hraban/opus.v2"
)

const micSampleRate = 16000

// trackSource adapts the founder's remote Opus track into the capture
// adapter's audio source: RTP packets are decoded to 16kHz mono PCM and
// emitted as float32 frames. Acquire and Release pair per turn, so the
// reader goroutine is restartable.
type trackSource struct {
	remote *webrtc.TrackRemote

	mu   sync.Mutex
	stop chan struct{}
}

func newTrackSource(remote *webrtc.TrackRemote) *trackSource {
	return &trackSource{remote: remote}
}

func (s *trackSource) SampleRate() int { return micSampleRate }

func (s *trackSource) Acquire(ctx context.Context) (<-chan []float32, error) {
	dec, err := opus.NewDecoder(micSampleRate, 1)
	if err != nil {
		return nil, errors.Wrap(err, "opus decoder")
	}

	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	frames := make(chan []float32, 64)
	go s.read(ctx, dec, frames, stop)
	return frames, nil
}

func (s *trackSource) Release() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
}

func (s *trackSource) read(ctx context.Context, dec *opus.Decoder, frames chan<- []float32, stop <-chan struct{}) {
	defer close(frames)
	pcm := make([]int16, 1920)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := s.remote.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Msg("mic track read ended")
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			log.Warn().Err(err).Msg("opus decode failed")
			continue
		}
		frame := make([]float32, n)
		for i := 0; i < n; i++ {
			frame[i] = float32(pcm[i]) / 32768.0
		}
		select {
		case frames <- frame:
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
			// capture is not draining; dropping is better than stalling RTP
		}
	}
}
