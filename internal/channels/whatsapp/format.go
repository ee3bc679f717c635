package whatsapp

import (
	"regexp"
	"strings"
)

var (
	citationPattern = regexp.MustCompile(`【.*?】`)
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// FormatText adapts model output to WhatsApp markup: citation markers in
// lenticular brackets are dropped and **bold** becomes *bold*.
//
// The bold rewrite repeats until nothing matches so that runs such as
// "**a****b****c**" settle in one call and FormatText stays idempotent.
func FormatText(raw string) string {
	text := citationPattern.ReplaceAllString(raw, "")
	text = strings.TrimSpace(text)
	for {
		next := boldPattern.ReplaceAllString(text, "*$1*")
		if next == text {
			return text
		}
		text = next
	}
}
