package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/evaluate"
	"github.com/abdhe/readcoach/pkg/fragment"
	"github.com/abdhe/readcoach/pkg/metrics"
	"github.com/abdhe/readcoach/pkg/normalize"
	"github.com/abdhe/readcoach/pkg/provider"
	"github.com/abdhe/readcoach/pkg/questions"
	"github.com/abdhe/readcoach/pkg/resilience"
	"github.com/abdhe/readcoach/pkg/simplify"
	"github.com/abdhe/readcoach/pkg/speech"
	"github.com/abdhe/readcoach/pkg/texts"
	"github.com/abdhe/readcoach/pkg/timing"
)

const maxBodyBytes = 2 << 20

// defaultLanguage fills absent language fields.
const defaultLanguage = "English"

// ---------------------------------------------------------------------------
// /qa routes
// ---------------------------------------------------------------------------

type simplifyRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Level    string `json:"level"`
	UserID   string `json:"userId"`
}

func (s *Server) handleSimplify(w http.ResponseWriter, r *http.Request) {
	var req simplifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeInvalid(w, "text is required")
		return
	}
	if !s.admit(w, r, callerID(r, req.UserID), req.Language) {
		return
	}

	result, err := s.simplifier.Simplify(r.Context(), req.Text, orDefault(req.Language), orLevel(req.Level))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"text": result})
}

type formatRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	UserID   string `json:"userId"`
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req formatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeInvalid(w, "text is required")
		return
	}
	if !s.admit(w, r, callerID(r, req.UserID), req.Language) {
		return
	}

	result, err := s.formatter.Improve(r.Context(), req.Text, orDefault(req.Language))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"text": result})
}

type questionsRequest struct {
	Fragment          string   `json:"fragment"`
	PreviousQuestions []string `json:"previous_questions"`
	Language          string   `json:"language"`
	Difficulty        string   `json:"difficulty"`
	UserID            string   `json:"userId"`
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Fragment) == "" {
		s.writeInvalid(w, "fragment is required")
		return
	}
	if !s.admit(w, r, callerID(r, req.UserID), req.Language) {
		return
	}

	qs, err := s.questions.Generate(r.Context(), req.Fragment, questions.Options{
		Language:   orDefault(req.Language),
		Difficulty: req.Difficulty,
		Previous:   req.PreviousQuestions,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if qs == nil {
		qs = []string{}
	}
	s.writeJSON(w, http.StatusOK, qs)
}

type batchRequest struct {
	Fragments  []string `json:"fragments"`
	Language   string   `json:"language"`
	Difficulty string   `json:"difficulty"`
	UserID     string   `json:"userId"`
}

type batchResponse struct {
	Mode      questions.Mode   `json:"mode"`
	Questions map[int][]string `json:"questions"`
	Calls     int              `json:"calls"`
}

func (s *Server) handleQuestionsBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Fragments) == 0 {
		s.writeInvalid(w, "fragments are required")
		return
	}
	if !s.admit(w, r, callerID(r, req.UserID), req.Language) {
		return
	}

	frags := fragment.Wrap(req.Fragments)
	plan := s.questions.Plan(frags)
	result, err := s.questions.Execute(r.Context(), plan, frags, questions.Options{
		Language:   orDefault(req.Language),
		Difficulty: req.Difficulty,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, batchResponse{
		Mode:      plan.Mode,
		Questions: result.Questions,
		Calls:     result.Calls,
	})
}

type evaluateRequest struct {
	Fragment   string `json:"fragment"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Language   string `json:"language"`
	UserID     string `json:"userId"`
	Strictness int    `json:"strictness"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Fragment) == "" || strings.TrimSpace(req.Question) == "" {
		s.writeInvalid(w, "fragment and question are required")
		return
	}

	// The evaluator runs its own admission check so throttling comes back
	// as reader-facing feedback, not a bare 429.
	result, err := s.evaluator.Evaluate(r.Context(), evaluate.Request{
		Fragment:   req.Fragment,
		Question:   req.Question,
		Answer:     req.Answer,
		Language:   orDefault(req.Language),
		CallerID:   callerID(r, req.UserID),
		Strictness: req.Strictness,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type audioRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"` // optional known narration length
}

type audioResponse struct {
	Audio string              `json:"audio"`
	Mime  string              `json:"mime"`
	Words []timing.WordTiming `json:"words"`
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeInvalid(w, "text is required")
		return
	}

	lang := orDefault(req.Language)
	audio, err := s.speech.Synthesize(r.Context(), req.Text, lang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, audioResponse{
		Audio: base64.StdEncoding.EncodeToString(audio),
		Mime:  "audio/mpeg",
		Words: timing.Words(req.Text, lang, req.Duration),
	})
}

// ---------------------------------------------------------------------------
// /texts routes
// ---------------------------------------------------------------------------

func (s *Server) handleListTexts(w http.ResponseWriter, r *http.Request) {
	items := s.texts.List(orDefault(r.URL.Query().Get("lang")))
	if items == nil {
		items = []texts.Item{}
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTextParts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	item, ok := s.texts.Get(name, orDefault(r.URL.Query().Get("lang")))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "text not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, item.Parts)
}

type uploadRequest struct {
	Name                 string `json:"name"`
	Language             string `json:"language"`
	Text                 string `json:"text"`
	AutoSplit            *bool  `json:"autoSplit"`
	FragmentTargetTokens int    `json:"fragmentTargetTokens"`
	UserID               string `json:"userId"`
}

func (s *Server) handleUploadText(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Text) == "" {
		s.writeInvalid(w, "name and text are required")
		return
	}

	parts := map[string]string{}
	if req.AutoSplit == nil || *req.AutoSplit {
		frags := s.split(r, callerID(r, req.UserID), req.Text, req.FragmentTargetTokens)
		if len(frags) == 0 {
			s.writeInvalid(w, "empty text")
			return
		}
		for _, f := range frags {
			parts[fmt.Sprintf("fragment %d", f.Index+1)] = f.Text
		}
	} else {
		parts["fragment 1"] = req.Text
	}

	item := texts.Item{Name: req.Name, Language: orDefault(req.Language), Parts: parts}
	s.texts.Add(item)
	s.log.Info().Str("name", req.Name).Int("uploads", s.texts.UploadCount()).Msg("text uploaded for session")

	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "item": item})
}

type previewRequest struct {
	Text         string `json:"text"`
	TargetTokens int    `json:"targetTokens"`
	UserID       string `json:"userId"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decode(w, r, &req) {
		return
	}

	frags := s.split(r, callerID(r, req.UserID), req.Text, req.TargetTokens)
	if len(frags) == 0 {
		s.writeInvalid(w, "empty text")
		return
	}

	pieces := make([]string, len(frags))
	for i, f := range frags {
		pieces[i] = f.Text
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"fragments": pieces})
}

// split runs the fragmentation engine with throttling degradation: a caller
// out of tokens still gets a correct split from the deterministic fallback,
// just not the model-assisted one. Short input never charges the limiter
// because it never reaches the backend.
func (s *Server) split(r *http.Request, caller, text string, targetTokens int) []fragment.Fragment {
	if targetTokens <= 0 {
		targetTokens = 400
	}

	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= s.minSplitLength {
		if allowed, _ := s.limiter.Allow(caller); !allowed {
			metrics.LimiterDeniedTotal.Inc()
			metrics.FallbackSplitsTotal.Inc()
			zerolog.Ctx(r.Context()).Info().Msg("caller throttled, using fallback split")
			return fragment.Wrap(fragment.FallbackSplit(trimmed, s.fallbackMaxChars))
		}
	}

	return s.splitter.Split(r.Context(), text, targetTokens)
}

// ---------------------------------------------------------------------------
// Shared plumbing
// ---------------------------------------------------------------------------

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeInvalid(w, "invalid JSON body")
		return false
	}
	return true
}

// admit charges the per-caller limiter and writes the throttling response on
// denial, with a human-readable wait hint in the caller's language.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, caller, language string) bool {
	allowed, wait := s.limiter.Allow(caller)
	if allowed {
		return true
	}
	metrics.LimiterDeniedTotal.Inc()
	zerolog.Ctx(r.Context()).Info().Float64("wait_seconds", wait).Msg("caller throttled")
	s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":        "rate_limited",
		"wait_seconds": wait,
		"message":      throttleMessage(language),
	})
	return false
}

func throttleMessage(language string) string {
	switch strings.ToLower(language) {
	case "latvian":
		return "Lūdzu, uzgaidiet brīdi un mēģiniet vēlreiz."
	case "spanish":
		return "Por favor, espera un momento y vuelve a intentarlo."
	case "russian":
		return "Пожалуйста, подождите немного и попробуйте снова."
	default:
		return "Please wait a moment and try again."
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}

func (s *Server) writeInvalid(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps component failures to status codes. Backend auth problems
// stay opaque to the reader but actionable in logs; malformed-output hard
// failures include a short diagnostic excerpt, never request contents.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())

	switch {
	case errors.Is(err, simplify.ErrTooLong), errors.Is(err, speech.ErrEmptyText):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, provider.ErrAuth):
		log.Error().Err(err).Msg("backend authentication failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "generation backend is misconfigured"})
	case errors.Is(err, provider.ErrRateLimited):
		log.Warn().Err(err).Msg("backend rate limited")
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "generation backend is overloaded, try again shortly"})
	case errors.Is(err, provider.ErrUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		log.Warn().Err(err).Msg("backend unavailable")
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "generation backend is unavailable, try again shortly"})
	case errors.Is(err, normalize.ErrMalformed):
		log.Error().Err(err).Msg("malformed backend output")
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func orDefault(language string) string {
	if language == "" {
		return defaultLanguage
	}
	return language
}

func orLevel(level string) string {
	if level == "" {
		return "default"
	}
	return level
}
