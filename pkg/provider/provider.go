// Package provider defines the generative-text backend interface and shared types.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Request represents a single generation request to a text backend.
type Request struct {
	Model       string
	Prompt      string
	System      string // optional system instruction, empty when unused
	Temperature float32
	TopP        float32
	APIKey      string // injected by the key pool
}

// Response represents a complete generation response.
type Response struct {
	Text         string `json:"text"`
	PromptTokens int32  `json:"prompt_tokens"`
	OutputTokens int32  `json:"output_tokens"`
}

// Classified backend failures. Providers wrap these sentinels so callers can
// branch with errors.Is instead of matching message text.
var (
	// ErrRateLimited indicates the backend rejected the call for quota reasons.
	ErrRateLimited = errors.New("backend rate limit exceeded")

	// ErrAuth indicates invalid or missing credentials. Not recoverable
	// without operator intervention.
	ErrAuth = errors.New("backend authentication failed")

	// ErrUnavailable indicates a transient backend condition (5xx, model
	// loading). Eligible for the single internal retry.
	ErrUnavailable = errors.New("backend unavailable")
)

// Provider is the interface every generative-text backend must implement.
type Provider interface {
	// Name returns a short identifier for this provider (e.g. "gemini").
	Name() string

	// Generate performs a single generation call. The context should carry
	// a deadline.
	Generate(ctx context.Context, req Request) (Response, error)
}

// ClassifyStatus maps a non-2xx HTTP status code to a classified error.
// The body excerpt is included for diagnostics; callers must truncate it
// before passing it in so secrets and full prompts never reach logs.
func ClassifyStatus(code int, body string) error {
	switch {
	case code == 429:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, code, body)
	case code == 401 || code == 403:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, code, body)
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, code, body)
	default:
		return fmt.Errorf("backend error: status %d: %s", code, body)
	}
}
