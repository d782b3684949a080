package rtc

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pkg/errors"
	opus "gopkg.in/hraban/opus.v2"
)

// sampleWriter is the outgoing track surface the pacer writes to.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// OpusPacedWriter is the playback sink for synthesized speech: it encodes
// 48kHz mono PCM to Opus and writes 20ms frames to the outgoing track at
// wall-clock pace. The bounded frame queue makes Write apply backpressure
// to the synthesizer instead of buffering unboundedly.
type OpusPacedWriter struct {
	enc          *opus.Encoder
	track        sampleWriter
	pcmBuf       []int16
	frameSamples int
	frames       chan []byte
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
}

// NewOpusPacedWriter constructs a paced writer with 20ms frames at 48kHz mono.
func NewOpusPacedWriter(track sampleWriter) (*OpusPacedWriter, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, errors.Wrap(err, "opus encoder")
	}
	w := &OpusPacedWriter{
		enc:          enc,
		track:        track,
		frameSamples: 960, // 20ms at 48kHz
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
	}
	go w.pacer()
	return w, nil
}

// Write buffers PCM 48kHz mono bytes and emits encoded Opus frames into
// the paced queue. Blocks while the queue is full.
func (w *OpusPacedWriter) Write(pcmBytes []byte) error {
	if len(pcmBytes) < 2 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errors.New("paced writer closed")
	}

	need := len(pcmBytes) / 2
	startLen := len(w.pcmBuf)
	if cap(w.pcmBuf)-startLen < need {
		tmp := make([]int16, startLen, startLen+need+2048)
		copy(tmp, w.pcmBuf)
		w.pcmBuf = tmp
	}
	w.pcmBuf = w.pcmBuf[:startLen+need]
	for i := 0; i < need; i++ {
		w.pcmBuf[startLen+i] = int16(uint16(pcmBytes[2*i]) | uint16(pcmBytes[2*i+1])<<8)
	}

	opusBuf := make([]byte, 4000)
	for len(w.pcmBuf) >= w.frameSamples {
		frame := w.pcmBuf[:w.frameSamples]
		n, err := w.enc.Encode(frame, opusBuf)
		if err == nil && n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			w.pushFrame(pkt)
		}
		copy(w.pcmBuf, w.pcmBuf[w.frameSamples:])
		w.pcmBuf = w.pcmBuf[:len(w.pcmBuf)-w.frameSamples]
	}
	return nil
}

// Flush pads the remaining PCM to a full frame, appends a short silence
// tail to avoid clipping, then blocks until the paced queue drains so the
// caller knows playback has finished.
func (w *OpusPacedWriter) Flush() error {
	w.mu.Lock()
	if w.enc != nil {
		opusBuf := make([]byte, 4000)
		if len(w.pcmBuf) > 0 {
			pad := make([]int16, w.frameSamples)
			copy(pad, w.pcmBuf)
			n, err := w.enc.Encode(pad, opusBuf)
			if err == nil && n > 0 {
				pkt := make([]byte, n)
				copy(pkt, opusBuf[:n])
				w.pushFrame(pkt)
			}
			w.pcmBuf = w.pcmBuf[:0]
		}
		// ~200ms of silence
		silence := make([]int16, w.frameSamples)
		for i := 0; i < 10; i++ {
			n, err := w.enc.Encode(silence, opusBuf)
			if err == nil && n > 0 {
				pkt := make([]byte, n)
				copy(pkt, opusBuf[:n])
				w.pushFrame(pkt)
			}
		}
	}
	w.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			if len(w.frames) == 0 {
				return nil
			}
		}
	}
}

// Reset drops any queued frames and pending PCM so playback stops
// immediately.
func (w *OpusPacedWriter) Reset() {
	w.mu.Lock()
	for {
		select {
		case <-w.frames:
		default:
			w.pcmBuf = w.pcmBuf[:0]
			w.mu.Unlock()
			return
		}
	}
}

// Close stops the pacer.
func (w *OpusPacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *OpusPacedWriter) pacer() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: 20 * time.Millisecond})
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, blocking until space is available or stopped.
// Called with w.mu held; the pacer drains independently so this cannot
// deadlock against Write.
func (w *OpusPacedWriter) pushFrame(pkt []byte) {
	select {
	case <-w.stopCh:
	case w.frames <- pkt:
	}
}
