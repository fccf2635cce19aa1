package speech

import (
	"regexp"
	"strings"
)

var (
	markdownBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	markdownItalic = regexp.MustCompile(`\*(.+?)\*`)
	markdownUnder  = regexp.MustCompile(`__(.+?)__`)
	markdownUnder1 = regexp.MustCompile(`_(.+?)_`)
	htmlTag        = regexp.MustCompile(`<[^>]+>`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// quoteReplacer normalizes typographic quotes, dashes, and ellipses that
// trip up TTS models.
var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, // curly double quotes
	"‘", "'", "’", "'", // curly single quotes
	"„", `"`, "‚", `"`, // German-style quotes
	"—", "-", "–", "-", // em and en dashes
	"…", "...", // ellipsis
)

// abbreviations expands common abbreviations TTS models misread, in English
// and Russian (the two languages where they show up in practice).
var abbreviations = []struct {
	re   *regexp.Regexp
	full string
}{
	{regexp.MustCompile(`\bDr\.`), "Doctor"},
	{regexp.MustCompile(`\bMr\.`), "Mister"},
	{regexp.MustCompile(`\bMrs\.`), "Missus"},
	{regexp.MustCompile(`\bMs\.`), "Miss"},
	{regexp.MustCompile(`\betc\.`), "etcetera"},
	{regexp.MustCompile(`\bi\.e\.`), "that is"},
	{regexp.MustCompile(`\be\.g\.`), "for example"},
	{regexp.MustCompile(`и т\.д\.`), "и так далее"},
	{regexp.MustCompile(`т\.д\.`), "так далее"},
	{regexp.MustCompile(`т\.е\.`), "то есть"},
	{regexp.MustCompile(`т\.к\.`), "так как"},
	{regexp.MustCompile(`т\.п\.`), "тому подобное"},
}

// CleanText prepares text for speech synthesis: markdown and HTML are
// stripped, typography is normalized, abbreviations are expanded, whitespace
// is collapsed, and a terminal period is added when punctuation is missing.
func CleanText(text string) string {
	text = markdownBold.ReplaceAllString(text, "$1")
	text = markdownItalic.ReplaceAllString(text, "$1")
	text = markdownUnder.ReplaceAllString(text, "$1")
	text = markdownUnder1.ReplaceAllString(text, "$1")
	text = htmlTag.ReplaceAllString(text, "")

	text = quoteReplacer.Replace(text)

	for _, abbr := range abbreviations {
		text = abbr.re.ReplaceAllString(text, abbr.full)
	}

	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))

	if text != "" && !strings.ContainsRune(".!?", rune(text[len(text)-1])) {
		text += "."
	}
	return text
}
