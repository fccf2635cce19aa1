package generate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/provider"
	"github.com/abdhe/readcoach/pkg/resilience"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []provider.Request
	resp  provider.Response
	errs  []error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req provider.Request) (provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return provider.Response{}, f.errs[i]
	}
	return f.resp, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]provider.Response
	stored  chan string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]provider.Response{}, stored: make(chan string, 8)}
}

func (f *fakeCache) Get(_ context.Context, key string) (provider.Response, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.entries[key]
	return resp, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, resp provider.Response) error {
	f.mu.Lock()
	f.entries[key] = resp
	f.mu.Unlock()
	f.stored <- key
	return nil
}

func newTestClient(p *fakeProvider, c ResponseCache) *Client {
	return New(Config{
		Provider: p,
		Keys:     resilience.NewKeyPool([]string{"key-1", "key-2"}),
		Breaker:  resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 5, Cooldown: time.Hour}),
		Cache:    c,
		Timeout:  time.Second,
		Backoff:  time.Millisecond,
		Logger:   zerolog.Nop(),
	})
}

func TestGenerateInjectsAPIKey(t *testing.T) {
	p := &fakeProvider{resp: provider.Response{Text: "out"}}
	c := newTestClient(p, nil)

	resp, err := c.Generate(context.Background(), provider.Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "out" {
		t.Errorf("text = %q", resp.Text)
	}
	if p.calls[0].APIKey != "key-1" {
		t.Errorf("api key = %q, want key-1 from the pool", p.calls[0].APIKey)
	}
}

func TestGenerateRetriesOnceOnUnavailable(t *testing.T) {
	p := &fakeProvider{
		resp: provider.Response{Text: "recovered"},
		errs: []error{provider.ErrUnavailable, nil},
	}
	c := newTestClient(p, nil)

	resp, err := c.Generate(context.Background(), provider.Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("text = %q", resp.Text)
	}
	if p.callCount() != 2 {
		t.Errorf("provider calls = %d, want 2", p.callCount())
	}
}

func TestGenerateNoRetryOnAuthError(t *testing.T) {
	p := &fakeProvider{errs: []error{provider.ErrAuth}}
	c := newTestClient(p, nil)

	_, err := c.Generate(context.Background(), provider.Request{Model: "m", Prompt: "p"})
	if !errors.Is(err, provider.ErrAuth) {
		t.Fatalf("got %v, want ErrAuth", err)
	}
	if p.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", p.callCount())
	}
}

func TestGenerateRotatesKeyOnRateLimit(t *testing.T) {
	p := &fakeProvider{
		resp: provider.Response{Text: "ok"},
		errs: []error{provider.ErrRateLimited, nil},
	}
	c := newTestClient(p, nil)

	if _, err := c.Generate(context.Background(), provider.Request{Model: "m", Prompt: "p"}); !errors.Is(err, provider.ErrRateLimited) {
		t.Fatalf("first call: got %v, want ErrRateLimited", err)
	}

	if _, err := c.Generate(context.Background(), provider.Request{Model: "m", Prompt: "p"}); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := p.calls[1].APIKey; got != "key-2" {
		t.Errorf("second call used %q, want key-2 after key-1 was marked limited", got)
	}
}

func TestGenerateCacheHitSkipsBackend(t *testing.T) {
	p := &fakeProvider{resp: provider.Response{Text: "fresh"}}
	fc := newFakeCache()
	c := newTestClient(p, fc)

	req := provider.Request{Model: "m", System: "s", Prompt: "p"}

	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatalf("first call: %v", err)
	}
	// The store is asynchronous; wait for it.
	select {
	case <-fc.stored:
	case <-time.After(time.Second):
		t.Fatal("response was never stored in the cache")
	}

	resp, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if resp.Text != "fresh" {
		t.Errorf("text = %q", resp.Text)
	}
	if p.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (second call should hit the cache)", p.callCount())
	}
}

func TestGenerateCircuitOpensAfterRepeatedFailures(t *testing.T) {
	p := &fakeProvider{errs: []error{
		provider.ErrUnavailable, provider.ErrUnavailable,
		provider.ErrUnavailable, provider.ErrUnavailable,
		provider.ErrUnavailable, provider.ErrUnavailable,
		provider.ErrUnavailable, provider.ErrUnavailable,
		provider.ErrUnavailable, provider.ErrUnavailable,
	}}
	c := newTestClient(p, nil)

	req := provider.Request{Model: "m", Prompt: "p"}
	// Each Generate makes up to two provider calls (retry), and each breaker
	// failure is one Execute. Threshold 5 trips after five calls.
	for i := 0; i < 5; i++ {
		c.Generate(context.Background(), req)
	}

	_, err := c.Generate(context.Background(), req)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
	if p.callCount() != 10 {
		t.Errorf("provider calls = %d, want 10 (none once the circuit opened)", p.callCount())
	}
}
