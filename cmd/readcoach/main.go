// readcoach — reading-comprehension backend.
//
// Turns narrative text into interactive reading material: simplified prose,
// comprehension questions, answer grading, formatting cleanup, and narration
// audio with word-level highlighting timings.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/cache"
	"github.com/abdhe/readcoach/pkg/evaluate"
	"github.com/abdhe/readcoach/pkg/format"
	"github.com/abdhe/readcoach/pkg/fragment"
	"github.com/abdhe/readcoach/pkg/generate"
	"github.com/abdhe/readcoach/pkg/httpapi"
	"github.com/abdhe/readcoach/pkg/provider"
	"github.com/abdhe/readcoach/pkg/questions"
	"github.com/abdhe/readcoach/pkg/ratelimit"
	"github.com/abdhe/readcoach/pkg/resilience"
	"github.com/abdhe/readcoach/pkg/simplify"
	"github.com/abdhe/readcoach/pkg/speech"
	"github.com/abdhe/readcoach/pkg/texts"
)

type config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	GeminiAPIKeys  []string `env:"GEMINI_API_KEYS" envSeparator:","`
	DeepSeekAPIKey string   `env:"DEEPSEEK_API_KEY"`
	HFAPIToken     string   `env:"HF_API_TOKEN"`

	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-lite"`
	DeepSeekModel string `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`

	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"2m"`
	RetryBackoff       time.Duration `env:"RETRY_BACKOFF" envDefault:"15s"`
	CBFailureThreshold int           `env:"CB_FAILURE_THRESHOLD" envDefault:"5"`
	CBCooldown         time.Duration `env:"CB_COOLDOWN" envDefault:"30s"`

	LimiterCapacity   int     `env:"LIMITER_CAPACITY" envDefault:"8"`
	LimiterRefillRate float64 `env:"LIMITER_REFILL_RATE" envDefault:"0.15"`

	MinSplitLength     int `env:"MIN_SPLIT_LENGTH" envDefault:"800"`
	MaxSplitTokens     int `env:"MAX_SPLIT_TOKENS" envDefault:"5000"`
	FallbackMaxChars   int `env:"FALLBACK_MAX_CHARS" envDefault:"800"`
	SingleModeMaxChars int `env:"SINGLE_MODE_MAX_CHARS" envDefault:"6000"`

	TextsFile string `env:"TEXTS_FILE" envDefault:"data/texts.json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	log.Info().Msg("starting readcoach")

	if len(cfg.GeminiAPIKeys) == 0 {
		log.Fatal().Msg("GEMINI_API_KEYS is required")
	}
	if cfg.DeepSeekAPIKey == "" {
		log.Fatal().Msg("DEEPSEEK_API_KEY is required")
	}

	// -------------------------------------------------------------------------
	// Response cache (optional)
	// -------------------------------------------------------------------------
	var responseCache generate.ResponseCache
	if cfg.RedisAddr != "" {
		redisCache := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, response cache disabled")
		} else {
			responseCache = redisCache
			log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("response cache enabled")
		}
		cancel()
	}

	// -------------------------------------------------------------------------
	// Generation clients
	// -------------------------------------------------------------------------
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.CBFailureThreshold,
		Cooldown:         cfg.CBCooldown,
	}

	geminiClient := generate.New(generate.Config{
		Provider: provider.NewGeminiProvider(),
		Keys:     resilience.NewKeyPool(cfg.GeminiAPIKeys),
		Breaker:  resilience.NewCircuitBreaker(cbCfg),
		Cache:    responseCache,
		Timeout:  cfg.RequestTimeout,
		Backoff:  cfg.RetryBackoff,
		Logger:   log.With().Str("provider", "gemini").Logger(),
	})
	log.Info().Int("keys", len(cfg.GeminiAPIKeys)).Msg("gemini key pool ready")

	deepseekClient := generate.New(generate.Config{
		Provider: provider.NewDeepSeekProvider(),
		Keys:     resilience.NewKeyPool([]string{cfg.DeepSeekAPIKey}),
		Breaker:  resilience.NewCircuitBreaker(cbCfg),
		Cache:    responseCache,
		Timeout:  cfg.RequestTimeout,
		Backoff:  cfg.RetryBackoff,
		Logger:   log.With().Str("provider", "deepseek").Logger(),
	})

	// -------------------------------------------------------------------------
	// Components
	// -------------------------------------------------------------------------
	limiter := ratelimit.New(cfg.LimiterCapacity, cfg.LimiterRefillRate)

	splitter := fragment.NewSplitter(geminiClient, cfg.GeminiModel, fragment.Config{
		MinSplitLength:   cfg.MinSplitLength,
		MaxTokens:        cfg.MaxSplitTokens,
		FallbackMaxChars: cfg.FallbackMaxChars,
	}, log.With().Str("component", "splitter").Logger())

	questionGen := questions.NewGenerator(geminiClient, cfg.GeminiModel, cfg.SingleModeMaxChars,
		log.With().Str("component", "questions").Logger())

	evaluator := evaluate.New(geminiClient, cfg.GeminiModel, limiter,
		log.With().Str("component", "evaluate").Logger())

	simplifier := simplify.New(deepseekClient, cfg.DeepSeekModel,
		log.With().Str("component", "simplify").Logger())

	formatter := format.New(geminiClient, cfg.GeminiModel,
		log.With().Str("component", "format").Logger())

	synthesizer := speech.New(cfg.HFAPIToken, log.With().Str("component", "speech").Logger())

	builtin, err := texts.Load(cfg.TextsFile)
	if err != nil {
		log.Warn().Err(err).Str("file", cfg.TextsFile).Msg("built-in texts unavailable")
	}
	textStore := texts.NewStore(builtin)

	api := httpapi.New(httpapi.Config{
		Limiter:          limiter,
		Splitter:         splitter,
		Questions:        questionGen,
		Evaluator:        evaluator,
		Simplifier:       simplifier,
		Formatter:        formatter,
		Speech:           synthesizer,
		Texts:            textStore,
		MinSplitLength:   cfg.MinSplitLength,
		FallbackMaxChars: cfg.FallbackMaxChars,
		Logger:           log.With().Str("component", "http").Logger(),
	})

	// -------------------------------------------------------------------------
	// Servers
	// -------------------------------------------------------------------------
	apiServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	metricsServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("api server error")
		}
	}()

	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("metrics server error")
		}
	}()

	// -------------------------------------------------------------------------
	// Graceful shutdown
	// -------------------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown")
	}

	log.Info().Msg("readcoach stopped")
}
