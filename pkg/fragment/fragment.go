// Package fragment splits narrative text into coherent, display-sized
// fragments. Long input is partitioned by the generative backend with a
// deterministic paragraph-merge fallback; short input is returned whole.
package fragment

import (
	"regexp"
	"strings"
)

// Fragment is a contiguous slice of source text assigned to a display unit.
type Fragment struct {
	Text          string `json:"text"`
	Index         int    `json:"index"`
	TokenEstimate int    `json:"tokenEstimate"`
}

// EstimateTokens is a fast approximation of the generation-model token count
// (chars / 4). Good enough for size budgeting; never used for billing.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Wrap converts raw fragment strings into indexed Fragments.
func Wrap(pieces []string) []Fragment {
	frags := make([]Fragment, 0, len(pieces))
	for i, p := range pieces {
		frags = append(frags, Fragment{
			Text:          p,
			Index:         i,
			TokenEstimate: EstimateTokens(p),
		})
	}
	return frags
}

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// FallbackSplit splits text on blank-line paragraph boundaries and greedily
// merges adjacent paragraphs while the running character count stays under
// maxChars. It always succeeds for non-empty input and never fabricates
// content: every fragment is a whitespace-trimmed substring of the source.
// A single paragraph longer than maxChars becomes its own fragment.
func FallbackSplit(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var paragraphs []string
	for _, p := range paragraphSep.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return []string{text}
	}

	var fragments []string
	var current string

	for _, para := range paragraphs {
		// +2 accounts for the blank-line separator we reinsert on merge.
		if current == "" {
			current = para
		} else if len(current)+len(para)+2 <= maxChars {
			current += "\n\n" + para
		} else {
			fragments = append(fragments, current)
			current = para
		}
	}
	if current != "" {
		fragments = append(fragments, current)
	}

	return fragments
}
