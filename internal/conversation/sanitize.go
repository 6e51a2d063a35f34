package conversation

import (
	"regexp"
	"strings"
	"unicode"
)

// The transport speaks raw text. Emoji get read out as their Unicode names,
// markdown markers are pronounced verbatim, and list bullets turn into
// "dash dash dash". Everything below exists to stop that.
var (
	codeFenceRE    = regexp.MustCompile("(?s)```.*?```|```.*")
	inlineCodeRE   = regexp.MustCompile("`([^`]*)`")
	boldItalicRE   = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+?)(\*{1,3}|_{1,3})`)
	headingRE      = regexp.MustCompile(`(?m)^\s*#{1,6}\s+`)
	bulletRE       = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	numberedRE     = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)
	whitespaceRE   = regexp.MustCompile(`[ \t]+`)
	blankLinesRE   = regexp.MustCompile(`\n{2,}`)
)

// SanitizeSpoken prepares model output for text-to-speech. Idempotent:
// sanitizing already-sanitized text returns it unchanged.
func SanitizeSpoken(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	out := codeFenceRE.ReplaceAllString(text, " ")
	out = inlineCodeRE.ReplaceAllString(out, "$1")
	// Run twice so nested emphasis (**bold *italic***) fully unwraps.
	out = boldItalicRE.ReplaceAllString(out, "$2")
	out = boldItalicRE.ReplaceAllString(out, "$2")
	out = headingRE.ReplaceAllString(out, "")
	out = bulletRE.ReplaceAllString(out, "")
	out = numberedRE.ReplaceAllString(out, "")
	out = stripPictographs(out)
	out = whitespaceRE.ReplaceAllString(out, " ")

	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out = strings.Join(lines, "\n")
	// Trimming lines can leave freshly empty ones, so collapse last.
	out = blankLinesRE.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

// stripPictographs removes emoji and other symbol runes that TTS engines
// read aloud by name.
func stripPictographs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isPictograph(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji, symbols, pictographs
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2190 && r <= 0x21FF: // arrows
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, zero-width joiner
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case unicode.Is(unicode.So, r):
		return true
	}
	return false
}
