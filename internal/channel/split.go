package channel

import (
	"strings"
	"unicode/utf8"
)

// SplitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible. Hard cuts land on a rune
// boundary so no chunk carries a torn multi-byte character.
func SplitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		// Try to split on a newline.
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		cut = runeBoundary(msg, cut)

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// Truncate caps text at max bytes without splitting a multi-byte rune.
// A non-positive max means no limit.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	return text[:runeBoundary(text, max)]
}

// runeBoundary walks cut back to the start of the rune it falls inside.
func runeBoundary(s string, cut int) int {
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}
