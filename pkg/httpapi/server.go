// Package httpapi exposes the service over HTTP JSON routes and maps
// component-level failures to response status codes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/evaluate"
	"github.com/abdhe/readcoach/pkg/fragment"
	"github.com/abdhe/readcoach/pkg/questions"
	"github.com/abdhe/readcoach/pkg/ratelimit"
	"github.com/abdhe/readcoach/pkg/texts"
)

// Service dependencies are narrow interfaces so handlers can be exercised
// with fakes; the production implementations live in their own packages.
type (
	// Splitter is the fragmentation engine surface.
	Splitter interface {
		Split(ctx context.Context, text string, targetTokens int) []fragment.Fragment
	}

	// QuestionService generates questions for one fragment or a batch.
	QuestionService interface {
		Generate(ctx context.Context, fragmentText string, opts questions.Options) ([]string, error)
		Plan(frags []fragment.Fragment) questions.Plan
		Execute(ctx context.Context, plan questions.Plan, frags []fragment.Fragment, opts questions.Options) (questions.BatchResult, error)
	}

	// Evaluator grades answers.
	Evaluator interface {
		Evaluate(ctx context.Context, req evaluate.Request) (evaluate.Result, error)
	}

	// Simplifier rewrites text for young readers.
	Simplifier interface {
		Simplify(ctx context.Context, text, language, level string) (string, error)
	}

	// Formatter cleans up text formatting.
	Formatter interface {
		Improve(ctx context.Context, text, language string) (string, error)
	}

	// SpeechSynthesizer produces narration audio.
	SpeechSynthesizer interface {
		Synthesize(ctx context.Context, text, language string) ([]byte, error)
	}
)

// Config bundles the server's dependencies.
type Config struct {
	Limiter    *ratelimit.Limiter
	Splitter   Splitter
	Questions  QuestionService
	Evaluator  Evaluator
	Simplifier Simplifier
	Formatter  Formatter
	Speech     SpeechSynthesizer
	Texts      *texts.Store

	// MinSplitLength mirrors the splitter's short-input threshold so the
	// limiter is not charged for requests that never reach the backend.
	MinSplitLength int

	// FallbackMaxChars is the fragment ceiling used when a throttled
	// caller degrades to the algorithmic split.
	FallbackMaxChars int

	Logger zerolog.Logger
}

// Server holds the route handlers.
type Server struct {
	limiter    *ratelimit.Limiter
	splitter   Splitter
	questions  QuestionService
	evaluator  Evaluator
	simplifier Simplifier
	formatter  Formatter
	speech     SpeechSynthesizer
	texts      *texts.Store

	minSplitLength   int
	fallbackMaxChars int

	log zerolog.Logger
}

// New creates the HTTP server component.
func New(cfg Config) *Server {
	if cfg.MinSplitLength <= 0 {
		cfg.MinSplitLength = 800
	}
	if cfg.FallbackMaxChars <= 0 {
		cfg.FallbackMaxChars = 800
	}
	return &Server{
		limiter:          cfg.Limiter,
		splitter:         cfg.Splitter,
		questions:        cfg.Questions,
		evaluator:        cfg.Evaluator,
		simplifier:       cfg.Simplifier,
		formatter:        cfg.Formatter,
		speech:           cfg.Speech,
		texts:            cfg.Texts,
		minSplitLength:   cfg.MinSplitLength,
		fallbackMaxChars: cfg.FallbackMaxChars,
		log:              cfg.Logger,
	}
}

// Routes builds the chi router for the service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.requestLogger)

	r.Route("/qa", func(r chi.Router) {
		r.Post("/simplify", s.handleSimplify)
		r.Post("/format", s.handleFormat)
		r.Post("/questions", s.handleQuestions)
		r.Post("/questions/batch", s.handleQuestionsBatch)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/audio", s.handleAudio)
	})

	r.Route("/texts", func(r chi.Router) {
		r.Get("/", s.handleListTexts)
		r.Get("/{name}/parts", s.handleTextParts)
		r.Post("/", s.handleUploadText)
		r.Post("/preview", s.handlePreview)
	})

	return r
}

// requestID tags every request with an ID, honoring one supplied upstream.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := s.log.With().Str("request_id", id).Logger().WithContext(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// callerID identifies the rate-limiting subject: an explicit body field
// wins, then the X-User-ID header; empty means the limiter's synthetic
// identity.
func callerID(r *http.Request, bodyUserID string) string {
	if bodyUserID != "" {
		return bodyUserID
	}
	return r.Header.Get("X-User-ID")
}
