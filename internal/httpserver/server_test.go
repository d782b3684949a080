package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/voicepitch/voicepitch/internal/llm"
	"github.com/voicepitch/voicepitch/internal/scorecard"
)

type fakeChat struct {
	reply llm.Reply
	err   error
	last  string
}

func (f *fakeChat) Chat(ctx context.Context, userMessage string, history []llm.Message) (llm.Reply, error) {
	f.last = userMessage
	return f.reply, f.err
}

type fakeSynth struct {
	chunks [][]byte
	err    error
}

func (f *fakeSynth) Name() string { return "fake" }
func (f *fakeSynth) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, len(f.chunks)+1)
	errCh := make(chan error, 1)
	for _, c := range f.chunks {
		pcmCh <- c
	}
	close(pcmCh)
	if f.err != nil {
		errCh <- f.err
	}
	close(errCh)
	return pcmCh, errCh
}

type fakeEvaluator struct {
	card *scorecard.Scorecard
	err  error
}

func (f *fakeEvaluator) Request(ctx context.Context, entries []scorecard.Entry) (*scorecard.Scorecard, error) {
	return f.card, f.err
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(&fakeChat{}, &fakeSynth{}, &fakeEvaluator{})
	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChat_Success(t *testing.T) {
	chat := &fakeChat{reply: llm.Reply{AgentText: "Who pays?", Confidence: 70, Decision: llm.DecisionLeaningIn}}
	s := New(chat, &fakeSynth{}, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"userMessage":"we sell to banks","history":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AgentText != "Who pays?" || resp.Confidence != 70 || resp.Decision != "LEANING_IN" {
		t.Fatalf("resp = %+v", resp)
	}
	if chat.last != "we sell to banks" {
		t.Fatalf("userMessage not forwarded: %q", chat.last)
	}
}

func TestChat_FailureDegradesToFallback(t *testing.T) {
	s := New(&fakeChat{err: errors.New("upstream down")}, &fakeSynth{}, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"userMessage":"hello"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AgentText != llm.FallbackLine || resp.Confidence != 50 || resp.Decision != "LISTENING" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestChat_MissingMessage(t *testing.T) {
	s := New(&fakeChat{}, &fakeSynth{}, &fakeEvaluator{})
	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTTS_StreamsAudio(t *testing.T) {
	s := New(&fakeChat{}, &fakeSynth{chunks: [][]byte{[]byte("abc"), []byte("def")}}, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodPost, "/api/tts", `{"text":"hello there"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content-type = %q", ct)
	}
	if rec.Body.String() != "abcdef" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestTTS_UpstreamFailureIs502(t *testing.T) {
	s := New(&fakeChat{}, &fakeSynth{err: errors.New("voice quota exceeded")}, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodPost, "/api/tts", `{"text":"hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected error body, got %v", resp)
	}
}

func TestTTS_EmptyText(t *testing.T) {
	s := New(&fakeChat{}, &fakeSynth{}, &fakeEvaluator{})
	rec := doJSON(t, s, http.MethodPost, "/api/tts", `{"text":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScorecard_Success(t *testing.T) {
	card := &scorecard.Scorecard{OneSentence: "credible wedge, thin moat"}
	s := New(&fakeChat{}, &fakeSynth{}, &fakeEvaluator{card: card})

	rec := doJSON(t, s, http.MethodPost, "/api/scorecard",
		`{"transcript":[{"speaker":"user","text":"pitch"},{"speaker":"investor","text":"question"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var got scorecard.Scorecard
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OneSentence != card.OneSentence {
		t.Fatalf("got = %+v", got)
	}
}

func TestScorecard_ParseErrorShipsRawText(t *testing.T) {
	parseErr := &scorecard.ParseError{Raw: "I think this pitch was fine", Err: errors.New("no JSON object found in response")}
	s := New(&fakeChat{}, &fakeSynth{}, &fakeEvaluator{err: parseErr})

	rec := doJSON(t, s, http.MethodPost, "/api/scorecard", `{"transcript":[{"speaker":"user","text":"pitch"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["raw"] != "I think this pitch was fine" {
		t.Fatalf("raw not preserved: %v", resp)
	}
}

func TestScorecard_TransportErrorIs500(t *testing.T) {
	s := New(&fakeChat{}, &fakeSynth{}, &fakeEvaluator{err: errors.New("timeout")})
	rec := doJSON(t, s, http.MethodPost, "/api/scorecard", `{"transcript":[{"speaker":"user","text":"pitch"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
