package fragment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/generate"
	"github.com/abdhe/readcoach/pkg/metrics"
	"github.com/abdhe/readcoach/pkg/normalize"
	"github.com/abdhe/readcoach/pkg/provider"
)

// Config bounds the splitter's behavior.
type Config struct {
	// MinSplitLength is the character count below which text is returned as
	// a single fragment without a backend call.
	MinSplitLength int

	// MaxTokens is the estimated-token ceiling above which the backend call
	// is skipped entirely and only the fallback algorithm runs.
	MaxTokens int

	// FallbackMaxChars is the fragment character ceiling for the fallback.
	FallbackMaxChars int
}

// DefaultConfig returns the production splitter bounds.
func DefaultConfig() Config {
	return Config{
		MinSplitLength:   800,
		MaxTokens:        5000,
		FallbackMaxChars: 800,
	}
}

// Splitter is the model-assisted fragmentation engine.
type Splitter struct {
	gen   generate.Generator
	model string
	cfg   Config
	log   zerolog.Logger
}

// NewSplitter creates a splitter that partitions text with the given
// generation backend and model.
func NewSplitter(gen generate.Generator, model string, cfg Config, log zerolog.Logger) *Splitter {
	if cfg.MinSplitLength <= 0 {
		cfg.MinSplitLength = 800
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 5000
	}
	if cfg.FallbackMaxChars <= 0 {
		cfg.FallbackMaxChars = 800
	}
	return &Splitter{gen: gen, model: model, cfg: cfg, log: log}
}

// Split partitions text into 2–8 display fragments around targetTokens per
// fragment. Short input comes back as a single fragment with no backend
// call; oversized input and every model-side failure degrade to the
// deterministic fallback. Empty input yields nil.
func (s *Splitter) Split(ctx context.Context, text string, targetTokens int) []Fragment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(text) < s.cfg.MinSplitLength {
		return Wrap([]string{text})
	}

	if total := EstimateTokens(text); total > s.cfg.MaxTokens {
		// Size circuit-breaker: too large for one model call.
		s.log.Info().Int("tokens", total).Int("limit", s.cfg.MaxTokens).Msg("text over token ceiling, using fallback split")
		metrics.FallbackSplitsTotal.Inc()
		return Wrap(FallbackSplit(text, 900))
	}

	pieces, err := s.modelSplit(ctx, text, targetTokens)
	if err != nil {
		s.log.Warn().Err(err).Msg("model split failed, using fallback")
		metrics.FallbackSplitsTotal.Inc()
		return Wrap(FallbackSplit(text, s.cfg.FallbackMaxChars))
	}

	return Wrap(pieces)
}

func (s *Splitter) modelSplit(ctx context.Context, text string, targetTokens int) ([]string, error) {
	if targetTokens < 100 {
		targetTokens = 100
	} else if targetTokens > 900 {
		targetTokens = 900
	}
	softMin := int(float64(targetTokens) * 0.65)
	if softMin < 60 {
		softMin = 60
	}
	softMax := int(float64(targetTokens) * 1.4)

	resp, err := s.gen.Generate(ctx, provider.Request{
		Model:       s.model,
		Prompt:      splitPrompt(text, targetTokens, softMin, softMax),
		Temperature: 0.2,
		TopP:        0.7,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := normalize.ParseJSON(resp.Text)
	if err != nil {
		return nil, err
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", normalize.ErrMalformed, parsed)
	}
	raw, ok := obj["fragments"].([]any)
	if !ok {
		return nil, fmt.Errorf(`%w: missing "fragments" array`, normalize.ErrMalformed)
	}

	pieces := projectFragments(raw)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: empty fragments array", normalize.ErrMalformed)
	}
	return pieces, nil
}

// projectFragments accepts either a list of strings or, leniently, a list of
// objects carrying a "text" field.
func projectFragments(raw []any) []string {
	var pieces []string
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if t := strings.TrimSpace(v); t != "" {
				pieces = append(pieces, t)
			}
		case map[string]any:
			if t, ok := v["text"].(string); ok {
				if t = strings.TrimSpace(t); t != "" {
					pieces = append(pieces, t)
				}
			}
		}
	}
	return pieces
}

func splitPrompt(text string, target, softMin, softMax int) string {
	var b strings.Builder
	b.WriteString("You are a precise text splitter for a reading comprehension app.\n")
	b.WriteString("Your job: split the story below into 2-8 logical fragments that are comfortable to read on screen.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Keep sentences intact.\n")
	b.WriteString("- Keep dialogue lines together.\n")
	b.WriteString("- Don't cut in the middle of a sentence.\n")
	fmt.Fprintf(&b, "- Aim for %d tokens per fragment.\n", target)
	fmt.Fprintf(&b, "- Stay within %d - %d tokens whenever possible.\n", softMin, softMax)
	b.WriteString("- Each fragment should be roughly similar length, but meaning comes first.\n\n")
	b.WriteString("Return ONLY a valid JSON object:\n")
	b.WriteString(`{"fragments": ["first fragment here", "second fragment here"]}`)
	b.WriteString("\n\nNo markdown, no extra keys, no comments.\n\nStory:\n")
	b.WriteString(text)
	return b.String()
}
