// Package evaluate grades a reader's answer against the source fragment.
// Evaluation is the highest-frequency interactive path (one call per typed
// answer), so it is gated by the per-caller rate limiter and throttling is
// reported inside the result rather than as an HTTP-level failure.
package evaluate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/generate"
	"github.com/abdhe/readcoach/pkg/metrics"
	"github.com/abdhe/readcoach/pkg/normalize"
	"github.com/abdhe/readcoach/pkg/provider"
	"github.com/abdhe/readcoach/pkg/ratelimit"
)

// Result is the graded outcome returned to the reader.
type Result struct {
	Feedback       string  `json:"feedback"`
	CorrectSnippet string  `json:"correct_snippet"`
	Correct        bool    `json:"correct"`
	RateLimited    bool    `json:"rate_limited"`
	WaitTime       float64 `json:"wait_time"`
}

// Request bundles one grading call.
type Request struct {
	Fragment   string
	Question   string
	Answer     string
	Language   string
	CallerID   string // empty falls back to the limiter's synthetic identity
	Strictness int    // 1 lenient .. 3 strict
}

var strictnessHints = map[int]string{
	1: "Be encouraging and lenient. Accept answers that capture the main idea even if details differ.",
	2: "Be fair and balanced. Minor paraphrasing is acceptable, but the answer must mention the key idea.",
	3: "Be strict. The answer must closely match the referenced text and include precise details.",
}

// Evaluator grades answers through a generation backend.
type Evaluator struct {
	gen     generate.Generator
	model   string
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// New creates an evaluator.
func New(gen generate.Generator, model string, limiter *ratelimit.Limiter, log zerolog.Logger) *Evaluator {
	return &Evaluator{gen: gen, model: model, limiter: limiter, log: log}
}

// Evaluate grades one answer. Throttling and unparseable model output are
// both reported inside the Result with reader-facing feedback in the
// caller's language; only backend failures return an error.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Result, error) {
	allowed, wait := e.limiter.Allow(req.CallerID)
	if !allowed {
		metrics.LimiterDeniedTotal.Inc()
		return Result{
			Feedback:    throttledFeedback(req.Language),
			RateLimited: true,
			WaitTime:    wait,
		}, nil
	}

	strictness := req.Strictness
	if _, ok := strictnessHints[strictness]; !ok {
		strictness = 2
	}

	resp, err := e.gen.Generate(ctx, provider.Request{
		Model:  e.model,
		System: gradingSystemMessage(req.Language, strictnessHints[strictness]),
		Prompt: fmt.Sprintf("Text:\n%s\n\nQuestion:\n%s\n\nChild's answer:\n%s",
			req.Fragment, req.Question, req.Answer),
		Temperature: 0.7,
		TopP:        0.7,
	})
	if err != nil {
		return Result{}, err
	}

	parsed, err := normalize.ParseJSON(resp.Text)
	if err != nil {
		e.log.Warn().Err(err).Msg("evaluation output unparseable")
		return Result{Feedback: parseErrorFeedback(req.Language)}, nil
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		e.log.Warn().Str("output", normalize.Excerpt(resp.Text, 120)).Msg("evaluation output has wrong shape")
		return Result{Feedback: parseErrorFeedback(req.Language)}, nil
	}

	result := Result{
		Feedback:       stringField(obj, "feedback"),
		CorrectSnippet: clampSnippet(stringField(obj, "correct_snippet")),
		Correct:        boolField(obj, "correct"),
	}
	return result, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// boolField tolerates both a JSON bool and the string "true".
func boolField(obj map[string]any, key string) bool {
	switch v := obj[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

var sentenceEnd = regexp.MustCompile(`[.!?]`)

// clampSnippet keeps the proof quote short: past ~25 words or 250 chars it
// is cut at the first sentence end, then hard-limited to 25 words.
func clampSnippet(snippet string) string {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return ""
	}

	words := strings.Fields(snippet)
	if len(words) <= 25 && len(snippet) <= 250 {
		return snippet
	}

	if loc := sentenceEnd.FindStringIndex(snippet); loc != nil {
		snippet = strings.TrimSpace(snippet[:loc[1]])
	}
	words = strings.Fields(snippet)
	if len(words) > 25 {
		snippet = strings.Join(words[:25], " ")
	}
	return snippet
}

func throttledFeedback(language string) string {
	switch strings.ToLower(language) {
	case "latvian":
		return "Lūdzu, uzgaidiet brīdi pirms nākamās atbildes."
	case "spanish":
		return "Por favor, espera un momento antes de la siguiente respuesta."
	case "russian":
		return "Пожалуйста, подождите немного перед следующим ответом."
	default:
		return "Please wait a moment before your next answer."
	}
}

func parseErrorFeedback(language string) string {
	switch strings.ToLower(language) {
	case "latvian":
		return "Kļūda apstrādājot atbildi. Lūdzu, mēģiniet vēlreiz."
	case "spanish":
		return "Error procesando la respuesta. Por favor, inténtalo de nuevo."
	case "russian":
		return "Ошибка обработки ответа. Пожалуйста, попробуйте снова."
	default:
		return "Error processing answer. Please try again."
	}
}

func gradingSystemMessage(language, strictnessHint string) string {
	switch strings.ToLower(language) {
	case "latvian":
		return "Tu esi skolotājs, kas īsi vērtē bērna atbildi. " +
			"Atbildi TIKAI kā JSON objektu bez komentāriem vai papildu teksta. " +
			`JSON struktūra: {"feedback":"...","correct_snippet":"...","correct":true/false}. ` +
			"'feedback' - īss teikums par atbildi. " +
			"'correct_snippet' - ĪSS citāts no Teksta (maksimums 20 vārdi), kas pierāda pareizo atbildi. " +
			"'correct' - true, ja pareizi, false, ja nepareizi. " + strictnessHint
	case "spanish":
		return "Eres un maestro que evalúa respuestas de niños. " +
			"Responde SOLO como un objeto JSON, sin comentarios ni texto adicional. " +
			`Formato JSON: {"feedback":"...","correct_snippet":"...","correct":true/false}. ` +
			"'feedback' - oración breve sobre la respuesta. " +
			"'correct_snippet' - una cita CORTA del Texto (máximo 20 palabras) que prueba la respuesta correcta. " +
			"'correct' - true si es correcto, false si no. " +
			"Sé flexible con ortografía y tildes, pero verifica que la idea principal sea correcta. " + strictnessHint
	case "russian":
		return "Ты учитель, который оценивает ответы детей. " +
			"Отвечай ТОЛЬКО в виде JSON объекта, без комментариев или дополнительного текста. " +
			`Формат JSON: {"feedback":"...","correct_snippet":"...","correct":true/false}. ` +
			"'feedback' - краткое предложение об ответе. " +
			"'correct_snippet' - КОРОТКАЯ цитата из Текста (максимум 20 слов), доказывающая правильный ответ. " +
			"'correct' - true если правильно, false если нет. " + strictnessHint
	default:
		return "You are a teacher evaluating a child's answer. " +
			"Respond ONLY as a JSON object, no commentary or extra text. " +
			`JSON format: {"feedback":"...","correct_snippet":"...","correct":true/false}. ` +
			"'feedback' - a short sentence about the answer. " +
			"'correct_snippet' - a SHORT quote from the Text (max 20 words) that proves the correct answer. " +
			"'correct' - true if correct, false otherwise. " + strictnessHint
	}
}
