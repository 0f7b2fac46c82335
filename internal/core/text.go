package core

import (
	"strings"
	"unicode/utf8"
)

// FloorCharBoundary returns the largest byte index <= index that is a valid
// UTF-8 character boundary in s.
func FloorCharBoundary(s string, index int) int {
	if index >= len(s) {
		return len(s)
	}
	for index > 0 && !utf8.RuneStart(s[index]) {
		index--
	}
	return index
}

// SplitText splits text into chunks of at most maxLen bytes without breaking
// paragraphs unnecessarily. Within each leading maxLen window it prefers the
// last paragraph break (blank line); if that lands before maxLen/2 it tries
// the last single line break; if that also lands before maxLen/2 it hard-cuts
// at the window edge. Chunks are emitted with trailing whitespace trimmed and
// the remainder advances past leading whitespace.
func SplitText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > maxLen {
		window := remaining[:FloorCharBoundary(remaining, maxLen)]

		cut := len(window)
		if idx := strings.LastIndex(window, "\n\n"); idx >= maxLen/2 {
			cut = idx
		} else if idx := strings.LastIndex(window, "\n"); idx >= maxLen/2 {
			cut = idx
		}
		if cut == 0 {
			// maxLen smaller than the next rune: emit the rune whole
			// rather than loop without advancing.
			_, size := utf8.DecodeRuneInString(remaining)
			cut = size
		}

		chunk := strings.TrimRight(remaining[:cut], " \t\r\n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeft(remaining[cut:], " \t\r\n")
	}

	if tail := strings.TrimRight(remaining, " \t\r\n"); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}
