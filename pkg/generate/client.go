// Package generate runs generation requests through the resilience and
// caching stack: response cache lookup, key rotation, circuit breaker, and
// the single transient-failure retry.
package generate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/cache"
	"github.com/abdhe/readcoach/pkg/metrics"
	"github.com/abdhe/readcoach/pkg/provider"
	"github.com/abdhe/readcoach/pkg/resilience"
)

// Generator is the call surface the content services depend on. *Client is
// the production implementation; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (provider.Response, error)
}

// ResponseCache is the subset of the cache used by the client. Nil-able:
// a client without a cache simply always calls the backend.
type ResponseCache interface {
	Get(ctx context.Context, key string) (provider.Response, bool, error)
	Set(ctx context.Context, key string, resp provider.Response) error
}

// Config holds the client configuration.
type Config struct {
	Provider provider.Provider
	Keys     *resilience.KeyPool
	Breaker  *resilience.CircuitBreaker
	Cache    ResponseCache // optional
	Timeout  time.Duration // per-call client-side timeout
	Backoff  time.Duration // fixed backoff before the single unavailable retry
	Logger   zerolog.Logger
}

// Client executes generation requests against one backend provider.
type Client struct {
	provider provider.Provider
	keys     *resilience.KeyPool
	breaker  *resilience.CircuitBreaker
	cache    ResponseCache
	timeout  time.Duration
	backoff  time.Duration
	log      zerolog.Logger
}

// New creates a generation client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 15 * time.Second
	}
	return &Client{
		provider: cfg.Provider,
		keys:     cfg.Keys,
		breaker:  cfg.Breaker,
		cache:    cfg.Cache,
		timeout:  cfg.Timeout,
		backoff:  cfg.Backoff,
		log:      cfg.Logger,
	}
}

// Generate performs one generation call. The request's APIKey field is
// filled from the key pool; callers never handle credentials.
func (c *Client) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	start := time.Now()
	metrics.ActiveRequests.Inc()
	defer metrics.ActiveRequests.Dec()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cacheKey := cache.Key(c.provider.Name(), req.Model, req.System, req.Prompt)

	if c.cache != nil {
		resp, hit, err := c.cache.Get(ctx, cacheKey)
		if err != nil {
			c.log.Warn().Err(err).Msg("cache lookup failed")
		}
		metrics.RecordCacheLookup(hit)
		if hit {
			metrics.BackendCallsTotal.WithLabelValues("cache_hit").Inc()
			metrics.GenerationLatency.WithLabelValues(c.provider.Name(), req.Model, "hit").Observe(time.Since(start).Seconds())
			return resp, nil
		}
	}

	apiKey, err := c.keys.Next()
	if err != nil {
		return provider.Response{}, err
	}
	req.APIKey = apiKey

	var resp provider.Response
	call := func() error {
		return resilience.RetryOnce(ctx, c.backoff, func(ctx context.Context) error {
			var genErr error
			resp, genErr = c.provider.Generate(ctx, req)
			return genErr
		})
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
		metrics.CircuitBreakerState.WithLabelValues(c.provider.Name()).Set(float64(c.breaker.State()))
	} else {
		err = call()
	}

	if err != nil {
		if errors.Is(err, provider.ErrRateLimited) {
			c.keys.MarkRateLimited(apiKey, time.Now().Add(60*time.Second))
		}
		metrics.BackendCallsTotal.WithLabelValues("error").Inc()
		metrics.GenerationLatency.WithLabelValues(c.provider.Name(), req.Model, "error").Observe(time.Since(start).Seconds())
		return provider.Response{}, err
	}

	metrics.BackendCallsTotal.WithLabelValues("success").Inc()
	metrics.GenerationLatency.WithLabelValues(c.provider.Name(), req.Model, "miss").Observe(time.Since(start).Seconds())
	metrics.TokenUsageTotal.WithLabelValues(c.provider.Name(), req.Model, "input").Add(float64(resp.PromptTokens))
	metrics.TokenUsageTotal.WithLabelValues(c.provider.Name(), req.Model, "output").Add(float64(resp.OutputTokens))

	if c.cache != nil && resp.Text != "" {
		go func() {
			storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer storeCancel()
			if err := c.cache.Set(storeCtx, cacheKey, resp); err != nil {
				c.log.Warn().Err(err).Msg("cache store failed")
			}
		}()
	}

	return resp, nil
}
