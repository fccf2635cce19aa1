// Package timing synthesizes word-level narration timings from text alone.
// The model is a deterministic approximation for UI highlighting, not a
// forced alignment against real audio: each word gets a share of the total
// duration proportional to its weight, with fixed pauses after punctuation.
package timing

import (
	"math"
	"strings"
	"unicode"
)

// WordTiming assigns a word its start and end timestamps in seconds.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Profile holds the per-language speaking model: a speaking rate in weight
// units per second and pause durations keyed by trailing punctuation.
type Profile struct {
	CharsPerSecond float64
	Pauses         map[rune]float64
}

var profiles = map[string]Profile{
	"english": {
		CharsPerSecond: 13,
		Pauses:         map[rune]float64{'.': 0.4, '!': 0.4, '?': 0.4, ',': 0.2, ';': 0.3, ':': 0.3},
	},
	"latvian": {
		CharsPerSecond: 12,
		Pauses:         map[rune]float64{'.': 0.45, '!': 0.45, '?': 0.45, ',': 0.2, ';': 0.3, ':': 0.3},
	},
	"spanish": {
		CharsPerSecond: 13,
		Pauses:         map[rune]float64{'.': 0.35, '!': 0.35, '?': 0.35, ',': 0.18, ';': 0.25, ':': 0.25},
	},
	"russian": {
		CharsPerSecond: 11,
		Pauses:         map[rune]float64{'.': 0.5, '!': 0.5, '?': 0.5, ',': 0.25, ';': 0.35, ':': 0.35},
	},
}

// ProfileFor returns the speaking profile for a language, falling back to
// English for unknown languages.
func ProfileFor(language string) Profile {
	if p, ok := profiles[strings.ToLower(language)]; ok {
		return p
	}
	return profiles["english"]
}

// Words computes a timing entry for every whitespace-delimited word of text.
// totalDuration is the known narration length in seconds; pass 0 or a
// negative value to estimate it from the profile's speaking rate. The
// function is pure and total: it never fails, and empty text yields nil.
func Words(text, language string, totalDuration float64) []WordTiming {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	profile := ProfileFor(language)

	weights := make([]float64, len(fields))
	pauses := make([]float64, len(fields))
	var totalWeight, totalPause float64

	for i, word := range fields {
		weights[i] = wordWeight(word)
		pauses[i] = trailingPause(word, profile)
		totalWeight += weights[i]
		totalPause += pauses[i]
	}

	if totalDuration <= 0 {
		totalDuration = totalWeight/profile.CharsPerSecond + totalPause
	}

	// Time available for the words themselves, pauses excluded.
	wordsDuration := totalDuration - totalPause

	timings := make([]WordTiming, len(fields))
	current := 0.0

	for i, word := range fields {
		var d float64
		if totalWeight > 0 {
			d = weights[i] / totalWeight * wordsDuration
		} else {
			d = wordsDuration / float64(len(fields))
		}

		timings[i] = WordTiming{
			Word:  word,
			Start: round2(current),
			End:   round2(current + d),
		}
		current += d + pauses[i]
	}

	return timings
}

// wordWeight counts the word's letters and digits, with a floor of 1 so
// punctuation-only tokens still occupy time.
func wordWeight(word string) float64 {
	n := 0
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	if n < 1 {
		n = 1
	}
	return float64(n)
}

// trailingPause returns the pause induced by the word's final rune, if any.
func trailingPause(word string, p Profile) float64 {
	runes := []rune(word)
	if len(runes) == 0 {
		return 0
	}
	return p.Pauses[runes[len(runes)-1]]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
