// Package format cleans up spacing, punctuation, casing, and paragraph
// breaks in user-supplied text without changing its content.
package format

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/generate"
	"github.com/abdhe/readcoach/pkg/provider"
)

// Formatter improves text formatting through a generation backend.
type Formatter struct {
	gen   generate.Generator
	model string
	log   zerolog.Logger
}

// New creates a formatter.
func New(gen generate.Generator, model string, log zerolog.Logger) *Formatter {
	return &Formatter{gen: gen, model: model, log: log}
}

var instructions = map[string]string{
	"latvian": "Uzlabot teikumu robežas, lielos sākumburtus un dialogu domuzīmes latviešu valodā.",
	"spanish": "Mejora la puntuación y los saltos de línea en español.",
	"russian": "Исправь пунктуацию и абзацы на русском языке.",
}

// Improve asks the model to fix spacing, punctuation, sentence casing, and
// speaker markers while keeping every piece of the original content.
func (f *Formatter) Improve(ctx context.Context, text, language string) (string, error) {
	hint, ok := instructions[strings.ToLower(language)]
	if !ok {
		hint = "Improve punctuation, spacing, and paragraphing in English."
	}

	resp, err := f.gen.Generate(ctx, provider.Request{
		Model: f.model,
		System: "You are an editor. Clean up formatting, fix missing capital letters, " +
			"ensure paragraphs break at natural points, and keep every piece of content from the user's text. " +
			"Do not summarize; return the original story with better formatting.",
		Prompt:      hint + "\n\nText:\n" + text,
		Temperature: 0.4,
		TopP:        0.7,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Text), nil
}
