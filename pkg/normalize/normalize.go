// Package normalize extracts and repairs structured payloads from free-form
// model output. Generative backends are only probabilistically compliant with
// a requested JSON schema, so every consumer of model output goes through the
// same strict → repair → default pipeline.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed indicates output that failed strict parsing and the single
// repair attempt. Callers on lenient paths substitute a fallback; the batch
// path surfaces it.
var ErrMalformed = errors.New("malformed model output")

// Clean strips a single pair of enclosing markdown code-fence markers, with
// or without a language tag, and trims surrounding whitespace. Cleaning
// already-clean text is a no-op.
func Clean(raw string) string {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		// Drop a language tag like "json" on the opening fence line.
		if idx := strings.IndexByte(cleaned, '\n'); idx >= 0 {
			firstLine := strings.TrimSpace(cleaned[:idx])
			if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]\"") {
				cleaned = cleaned[idx+1:]
			}
		}
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	return cleaned
}

// ParseJSON cleans raw output and attempts strict JSON parsing, then exactly
// one repair pass (single-quote string delimiters coerced to double quotes)
// before giving up with ErrMalformed.
func ParseJSON(raw string) (any, error) {
	cleaned := Clean(raw)

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return v, nil
	}

	repaired := strings.ReplaceAll(cleaned, "'", `"`)
	if err := json.Unmarshal([]byte(repaired), &v); err == nil {
		return v, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrMalformed, Excerpt(cleaned, 120))
}

// Parse is the lenient form of ParseJSON: it returns fallback instead of an
// error when both parse attempts fail.
func Parse(raw string, fallback any) any {
	v, err := ParseJSON(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Decode runs the strict → repair pipeline into a typed target.
func Decode(raw string, target any) error {
	cleaned := Clean(raw)

	if err := json.Unmarshal([]byte(cleaned), target); err == nil {
		return nil
	}

	repaired := strings.ReplaceAll(cleaned, "'", `"`)
	if err := json.Unmarshal([]byte(repaired), target); err == nil {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrMalformed, Excerpt(cleaned, 120))
}

// Excerpt truncates s for diagnostics and log lines.
func Excerpt(s string, max int) string {
	const suffix = "..."
	if len(s) <= max {
		return s
	}
	if max <= len(suffix) {
		return s[:max]
	}
	return s[:max-len(suffix)] + suffix
}
