// Package simplify rewrites narrative text into prose a young reader can
// follow, preserving plot, dialogue, and character motivation.
package simplify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/generate"
	"github.com/abdhe/readcoach/pkg/provider"
)

// MaxInputLength caps simplification input; longer texts should be split
// first.
const MaxInputLength = 15000

// ErrTooLong is returned for input over MaxInputLength, before any backend
// call is made.
var ErrTooLong = errors.New("text exceeds maximum length")

var levelHints = map[string]string{
	"gentle":  "Focus on clarifying sentences but keep most original vocabulary.",
	"default": "Balance simplicity with original tone.",
	"deep":    "Simplify aggressively using very short sentences and everyday vocabulary.",
}

// Simplifier rewrites text through a generation backend.
type Simplifier struct {
	gen   generate.Generator
	model string
	log   zerolog.Logger
}

// New creates a simplifier.
func New(gen generate.Generator, model string, log zerolog.Logger) *Simplifier {
	return &Simplifier{gen: gen, model: model, log: log}
}

// Simplify rewrites text for the given language and simplification level.
func (s *Simplifier) Simplify(ctx context.Context, text, language, level string) (string, error) {
	if len(text) > MaxInputLength {
		return "", fmt.Errorf("%w (%d > %d characters)", ErrTooLong, len(text), MaxInputLength)
	}

	hint, ok := levelHints[strings.ToLower(level)]
	if !ok {
		hint = levelHints["default"]
	}

	system, template := promptsFor(language)

	resp, err := s.gen.Generate(ctx, provider.Request{
		Model:       s.model,
		System:      system,
		Prompt:      fmt.Sprintf(template, text) + "\n\nSimplification aim: " + hint,
		Temperature: 0.7,
		TopP:        0.7,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Text), nil
}

func promptsFor(language string) (system, template string) {
	switch strings.ToLower(language) {
	case "latvian":
		return "Tu esi radošs un atbalstošs skolotājs, kurš māca bērnus lasīt ar izpratni.",
			"Tu māci 14 gadus vecus bērnus lasīt un saprast stāstus.\n" +
				"Pārraksti sekojošo tekstu tā, lai tas būtu viegli lasāms un saprotams 14 gadus vecam bērnam, saglabājot:\n" +
				"- stāsta galvenos pavērsienus un varoņu nodomus,\n" +
				"- dialogus, kas ataino rīcību un motivāciju,\n" +
				"- notikumu loģisko secību,\n" +
				"- precīzus darbības vārdus,\n" +
				"- dabisku sarunas plūdumu dialogos.\n\n" +
				"Raksti vienmērīgā paragrāfu formā, nevis punktu veidā. Izmanto vidēji garus teikumus, " +
				"vienkāršus vārdus un konkrētus aprakstus; izvairies no sarežģītiem izteicieniem un metaforām.\n\n" +
				"Atgriez tikai vienkāršoto tekstu bez papildu paskaidrojumiem.\n\nTeksts, kas jāvienkāršo:\n%s"
	case "spanish":
		return "Eres un maestro creativo y solidario que enseña a los niños a leer con comprensión.",
			"Guías a jóvenes de 14 años para leer y comprender historias.\n" +
				"Reescribe el siguiente texto como una narrativa clara y atractiva que un joven de 14 años pueda seguir, preservando:\n" +
				"- los desarrollos clave de la trama y las intenciones de los personajes,\n" +
				"- diálogos que transmitan acción y motivación,\n" +
				"- la secuencia lógica de eventos,\n" +
				"- verbos de acción precisos,\n" +
				"- flujo conversacional natural.\n\n" +
				"Escribe en párrafos completos, sin listas ni viñetas. Usa oraciones moderadamente largas, " +
				"palabras simples y descripciones concretas; sin modismos complejos ni metáforas.\n\n" +
				"Devuelve solo el texto simplificado sin comentarios adicionales.\n\nTexto a simplificar:\n%s"
	case "russian":
		return "Ты творческий и поддерживающий учитель, который учит детей читать с пониманием.",
			"Ты помогаешь 14-летним детям читать и понимать рассказы.\n" +
				"Перепиши следующий текст как ясное, увлекательное повествование, которое может понять 14-летний ребёнок, сохраняя:\n" +
				"- ключевые развития сюжета и намерения персонажей,\n" +
				"- диалоги, которые передают действие и мотивацию,\n" +
				"- логическую последовательность событий,\n" +
				"- точные глаголы действия,\n" +
				"- естественный разговорный поток.\n\n" +
				"Пиши полными абзацами, без списков и маркеров. Используй умеренно длинные предложения, " +
				"простые слова и конкретные описания; без сложных идиом и метафор.\n\n" +
				"Верни только упрощённый текст без дополнительных комментариев.\n\nТекст для упрощения:\n%s"
	default:
		return "You are a creative and supportive teacher who teaches children to read with comprehension.",
			"You are guiding 14-year-olds to read and understand stories.\n" +
				"Rewrite the following text as a clear, engaging narrative that a 14-year-old can follow, while preserving:\n" +
				"- the key plot developments and characters' intentions,\n" +
				"- dialogues that convey action and motivation,\n" +
				"- the logical sequence of events,\n" +
				"- precise action verbs,\n" +
				"- natural conversational flow.\n\n" +
				"Write in full paragraphs, no lists or bullet points. Use moderately long sentences, " +
				"simple concrete words and descriptions; no complex idioms or metaphors.\n\n" +
				"Return only the simplified story text without any additional commentary.\n\nText to simplify:\n%s"
	}
}
