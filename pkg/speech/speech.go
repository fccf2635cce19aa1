// Package speech synthesizes narration audio through hosted TTS models.
// The core treats audio as opaque bytes; word-level highlighting timings are
// synthesized separately by pkg/timing.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/provider"
)

// ErrEmptyText is returned when there is nothing left to synthesize after
// cleanup.
var ErrEmptyText = errors.New("no text to synthesize")

// models maps a language to its hosted TTS model.
var models = map[string]string{
	"english": "facebook/mms-tts-eng",
	"russian": "facebook/mms-tts-rus",
	"spanish": "facebook/mms-tts-spa",
	"latvian": "facebook/mms-tts-lav",
}

// Synthesizer calls the HuggingFace inference router for TTS.
type Synthesizer struct {
	client  *http.Client
	token   string
	baseURL string
	backoff time.Duration // wait before the single model-loading retry
	log     zerolog.Logger
}

// New creates a synthesizer with the given API token.
func New(token string, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		client:  &http.Client{Timeout: 2 * time.Minute},
		token:   token,
		baseURL: "https://router.huggingface.co/hf-inference/models",
		backoff: 15 * time.Second,
		log:     log,
	}
}

// Synthesize cleans text and returns MP3 audio bytes for the language.
func (s *Synthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	clean := CleanText(text)
	if clean == "" {
		return nil, ErrEmptyText
	}

	model, ok := models[strings.ToLower(language)]
	if !ok {
		model = models["english"]
	}

	audio, err := s.post(ctx, model, clean)
	if err == nil {
		return audio, nil
	}

	// Hosted models unload when idle and return 503 while reloading; one
	// retry after a fixed wait covers the common case.
	if errors.Is(err, provider.ErrUnavailable) {
		s.log.Info().Str("model", model).Dur("backoff", s.backoff).Msg("tts model loading, retrying once")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff):
		}
		return s.post(ctx, model, clean)
	}

	return nil, err
}

func (s *Synthesizer) post(ctx context.Context, model, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: %w: %v", provider.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts: %w", provider.ClassifyStatus(resp.StatusCode, string(respBody)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	return audio, nil
}
