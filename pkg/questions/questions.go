// Package questions generates comprehension questions over text fragments,
// either one fragment at a time or batched across many fragments in a
// single consolidated backend call.
package questions

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/generate"
	"github.com/abdhe/readcoach/pkg/normalize"
	"github.com/abdhe/readcoach/pkg/provider"
)

// Options carries the caller-tunable generation parameters.
type Options struct {
	Language   string
	Difficulty string
	Previous   []string // earlier questions the model should not repeat
}

// Generator produces questions through a generation backend.
type Generator struct {
	gen                generate.Generator
	model              string
	singleModeMaxChars int
	log                zerolog.Logger
}

// DefaultSingleModeMaxChars is the aggregate fragment size up to which the
// batch path consolidates everything into one backend call.
const DefaultSingleModeMaxChars = 6000

// NewGenerator creates a question generator.
func NewGenerator(gen generate.Generator, model string, singleModeMaxChars int, log zerolog.Logger) *Generator {
	if singleModeMaxChars <= 0 {
		singleModeMaxChars = DefaultSingleModeMaxChars
	}
	return &Generator{gen: gen, model: model, singleModeMaxChars: singleModeMaxChars, log: log}
}

// QuotaFor maps a fragment's character count to its question quota: shorter
// fragments get fewer questions.
func QuotaFor(fragmentText string) int {
	switch n := len(strings.TrimSpace(fragmentText)); {
	case n < 300:
		return 2
	case n < 600:
		return 3
	case n < 1000:
		return 4
	default:
		return 5
	}
}

// Generate produces questions for a single fragment. This is the lenient
// path: malformed model output yields an empty list, never an error. Backend
// failures still propagate so the caller can distinguish "nothing to ask"
// from "the backend is down".
func (g *Generator) Generate(ctx context.Context, fragmentText string, opts Options) ([]string, error) {
	quota := QuotaFor(fragmentText)

	resp, err := g.gen.Generate(ctx, provider.Request{
		Model:       g.model,
		System:      systemMessage(opts.Language, opts.Previous, opts.Difficulty, quota),
		Prompt:      "Text:\n" + fragmentText,
		Temperature: 0.7,
		TopP:        0.7,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := normalize.ParseJSON(resp.Text)
	if err != nil {
		// Unparseable output on this path degrades to an empty list.
		g.log.Warn().Err(err).Msg("question output unparseable, returning empty list")
		return nil, nil
	}

	return normalize.Questions(parsed), nil
}
