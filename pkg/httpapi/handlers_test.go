package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/evaluate"
	"github.com/abdhe/readcoach/pkg/fragment"
	"github.com/abdhe/readcoach/pkg/provider"
	"github.com/abdhe/readcoach/pkg/questions"
	"github.com/abdhe/readcoach/pkg/ratelimit"
	"github.com/abdhe/readcoach/pkg/texts"
)

type stubSplitter struct {
	calls int
	frags []fragment.Fragment
}

func (s *stubSplitter) Split(_ context.Context, text string, _ int) []fragment.Fragment {
	s.calls++
	if s.frags != nil {
		return s.frags
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return fragment.Wrap([]string{text})
}

type stubQuestions struct {
	qs  []string
	err error
}

func (s *stubQuestions) Generate(context.Context, string, questions.Options) ([]string, error) {
	return s.qs, s.err
}

func (s *stubQuestions) Plan(frags []fragment.Fragment) questions.Plan {
	quotas := make([]int, len(frags))
	return questions.Plan{Mode: questions.ModeSingle, Quotas: quotas}
}

func (s *stubQuestions) Execute(context.Context, questions.Plan, []fragment.Fragment, questions.Options) (questions.BatchResult, error) {
	if s.err != nil {
		return questions.BatchResult{}, s.err
	}
	return questions.BatchResult{Questions: map[int][]string{0: s.qs}, Calls: 1}, nil
}

type stubEvaluator struct {
	result evaluate.Result
	err    error
}

func (s *stubEvaluator) Evaluate(context.Context, evaluate.Request) (evaluate.Result, error) {
	return s.result, s.err
}

type stubSimplifier struct {
	out string
	err error
}

func (s *stubSimplifier) Simplify(context.Context, string, string, string) (string, error) {
	return s.out, s.err
}

type stubFormatter struct{ out string }

func (s *stubFormatter) Improve(context.Context, string, string) (string, error) {
	return s.out, nil
}

type stubSpeech struct {
	audio []byte
	err   error
}

func (s *stubSpeech) Synthesize(context.Context, string, string) ([]byte, error) {
	return s.audio, s.err
}

type serverOption func(*Config)

func newTestServer(opts ...serverOption) (*Server, *stubSplitter) {
	splitter := &stubSplitter{}
	cfg := Config{
		Limiter:    ratelimit.New(8, 0.15),
		Splitter:   splitter,
		Questions:  &stubQuestions{qs: []string{"What happened?"}},
		Evaluator:  &stubEvaluator{result: evaluate.Result{Feedback: "good", Correct: true}},
		Simplifier: &stubSimplifier{out: "simpler text"},
		Formatter:  &stubFormatter{out: "formatted text"},
		Speech:     &stubSpeech{audio: []byte("mp3")},
		Texts:      texts.NewStore([]texts.Item{{Name: "story", Language: "English", Parts: map[string]string{"fragment 1": "once"}}}),
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg), splitter
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSimplifyHandler(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/simplify",
		`{"text": "A long story.", "language": "English", "userId": "u1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["text"] != "simpler text" {
		t.Errorf("text = %q", out["text"])
	}
}

func TestSimplifyRequiresText(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/simplify", `{"text": "  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/simplify", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestThrottledCallerGets429WithWaitHint(t *testing.T) {
	s, _ := newTestServer(func(c *Config) {
		c.Limiter = ratelimit.New(1, 0.15)
	})
	h := s.Routes()

	body := `{"text": "story", "userId": "u1", "language": "Spanish"}`
	if rec := doJSON(t, h, http.MethodPost, "/qa/format", body); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/qa/format", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if wait, _ := out["wait_seconds"].(float64); wait <= 0 {
		t.Errorf("wait_seconds = %v, want > 0", out["wait_seconds"])
	}
	msg, _ := out["message"].(string)
	if !strings.Contains(msg, "espera") {
		t.Errorf("message not localized: %q", msg)
	}
}

func TestQuestionsHandler(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/questions",
		`{"fragment": "The fox ran.", "language": "English"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var qs []string
	json.Unmarshal(rec.Body.Bytes(), &qs)
	if len(qs) != 1 || qs[0] != "What happened?" {
		t.Errorf("questions = %v", qs)
	}
}

func TestQuestionsBatchHandler(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/questions/batch",
		`{"fragments": ["first", "second"], "language": "English"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Mode  string `json:"mode"`
		Calls int    `json:"calls"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Mode != "single" || out.Calls != 1 {
		t.Errorf("mode = %q calls = %d", out.Mode, out.Calls)
	}
}

func TestEvaluateHandlerBypassesHTTPThrottle(t *testing.T) {
	// Even with a zero-capacity shared view, evaluation must reach the
	// evaluator, which embeds throttling in the result body.
	s, _ := newTestServer(func(c *Config) {
		c.Evaluator = &stubEvaluator{result: evaluate.Result{
			Feedback: "please wait", RateLimited: true, WaitTime: 6.7,
		}}
	})
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/evaluate",
		`{"fragment": "text", "question": "q?", "answer": "a"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with in-body throttling", rec.Code)
	}
	var out evaluate.Result
	json.Unmarshal(rec.Body.Bytes(), &out)
	if !out.RateLimited || out.WaitTime != 6.7 {
		t.Errorf("result = %+v", out)
	}
}

func TestAudioHandler(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/audio",
		`{"text": "Hello world.", "language": "English"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out audioResponse
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Mime != "audio/mpeg" {
		t.Errorf("mime = %q", out.Mime)
	}
	if out.Audio == "" {
		t.Error("no audio payload")
	}
	if len(out.Words) != 2 {
		t.Errorf("words = %d, want 2", len(out.Words))
	}
	if len(out.Words) > 0 && out.Words[0].Start != 0 {
		t.Errorf("first word start = %v", out.Words[0].Start)
	}
}

func TestListTexts(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/texts?lang=English", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var items []texts.Item
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].Name != "story" {
		t.Errorf("items = %+v", items)
	}
}

func TestTextPartsNotFound(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/texts/missing/parts?lang=English", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUploadTextAutoSplit(t *testing.T) {
	s, splitter := newTestServer()
	splitter.frags = fragment.Wrap([]string{"part one", "part two"})

	rec := doJSON(t, s.Routes(), http.MethodPost, "/texts",
		`{"name": "new story", "language": "English", "text": "part one\n\npart two"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out struct {
		Item texts.Item `json:"item"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Item.Parts["fragment 1"] != "part one" || out.Item.Parts["fragment 2"] != "part two" {
		t.Errorf("parts = %v", out.Item.Parts)
	}
}

func TestUploadTextNoSplit(t *testing.T) {
	s, splitter := newTestServer()

	rec := doJSON(t, s.Routes(), http.MethodPost, "/texts",
		`{"name": "raw", "text": "whole text", "autoSplit": false}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if splitter.calls != 0 {
		t.Errorf("splitter called %d times with autoSplit=false", splitter.calls)
	}
}

func TestPreviewHandler(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s.Routes(), http.MethodPost, "/texts/preview",
		`{"text": "Some story text here."}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string][]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out["fragments"]) != 1 {
		t.Errorf("fragments = %v", out["fragments"])
	}
}

func TestThrottledSplitDegradesToFallback(t *testing.T) {
	s, splitter := newTestServer(func(c *Config) {
		c.Limiter = ratelimit.New(1, 0.15)
		c.MinSplitLength = 10
	})
	h := s.Routes()

	// Exhaust the caller's bucket.
	doJSON(t, h, http.MethodPost, "/qa/format", `{"text": "x", "userId": "u9"}`)

	rec := doJSON(t, h, http.MethodPost, "/texts/preview",
		`{"text": "First paragraph of the story.\n\nSecond paragraph of the story.", "userId": "u9"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 via fallback split", rec.Code)
	}
	if splitter.calls != 0 {
		t.Errorf("model splitter called %d times for a throttled caller", splitter.calls)
	}
	var out map[string][]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out["fragments"]) == 0 {
		t.Error("fallback produced no fragments")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", provider.ErrAuth, http.StatusInternalServerError},
		{"backend rate limited", provider.ErrRateLimited, http.StatusServiceUnavailable},
		{"unavailable", provider.ErrUnavailable, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(func(c *Config) {
				c.Simplifier = &stubSimplifier{err: tt.err}
			})
			rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/simplify", `{"text": "story"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthErrorBodyIsOpaque(t *testing.T) {
	s, _ := newTestServer(func(c *Config) {
		c.Simplifier = &stubSimplifier{err: provider.ErrAuth}
	})
	rec := doJSON(t, s.Routes(), http.MethodPost, "/qa/simplify", `{"text": "story"}`)
	if strings.Contains(rec.Body.String(), "authentication") {
		t.Errorf("auth details leaked to the client: %s", rec.Body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer()
	h := s.Routes()

	rec := doJSON(t, h, http.MethodPost, "/qa/format", `{"text": "x"}`)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("no request ID assigned")
	}

	req := httptest.NewRequest(http.MethodPost, "/qa/format", strings.NewReader(`{"text": "x"}`))
	req.Header.Set("X-Request-ID", "upstream-id")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Header().Get("X-Request-ID") != "upstream-id" {
		t.Errorf("upstream request ID not honored: %q", rec2.Header().Get("X-Request-ID"))
	}
}
