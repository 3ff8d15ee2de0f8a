package ai

import "strings"

// CleanResponse strips the markdown code fences chat models like to wrap
// around otherwise plain-text replies. Content without fences is returned
// trimmed but otherwise untouched.
func CleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the opening fence together with its optional language tag.
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[i+1:]

	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
