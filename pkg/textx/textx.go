// Package textx holds the sanitizers applied to analysis request metadata
// before it reaches validation or storage.
package textx

import (
	"strings"
)

// SanitizeText keeps printable runes plus tab, newline and carriage return,
// drops every other control character and trims surrounding whitespace.
// Suited to multi-line fields such as commit messages.
func SanitizeText(s string) string {
	return strings.TrimSpace(strings.Map(keepMultiline, s))
}

// SanitizeLine sanitizes single-line metadata such as repository names,
// commit hashes, branches and authors: line breaks and tabs are dropped too.
func SanitizeLine(s string) string {
	return strings.TrimSpace(strings.Map(keepPrintable, s))
}

func keepMultiline(r rune) rune {
	if r == '\n' || r == '\r' || r == '\t' {
		return r
	}
	return keepPrintable(r)
}

func keepPrintable(r rune) rune {
	if r < 32 || r == 127 {
		return -1
	}
	return r
}
