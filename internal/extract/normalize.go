package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	// NBSP and zero-width characters count as plain spaces.
	spaceRe   = regexp.MustCompile(`[ \t\x{00A0}\x{200B}\x{200C}\x{200D}]+`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
	ctrlRe    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]+`)
)

// Normalize cleans extracted text: entities unescaped, control characters
// dropped, per-line trim, runs of spaces collapsed, blank-line runs capped
// at one.
func Normalize(text string) string {
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = ctrlRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = spaceRe.ReplaceAllString(text, " ")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
