package utils

import "strings"

// charsPerToken is the rough ratio used for English and tabular text.
const charsPerToken = 4

// EstimateTokens approximates the token count of text. Any non-empty text is
// at least one token.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return max(n/charsPerToken, 1)
}

// TruncateTokens shortens text to roughly limit tokens. When the cut falls
// inside a line it backs up to the previous newline so "column: value" rows
// are never split mid-field; a single over-long line is cut at the limit.
func TruncateTokens(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * charsPerToken
	if charLimit >= len(runes) {
		return text
	}
	cut := string(runes[:charLimit])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		return cut[:i]
	}
	return cut
}

// PromptTokens estimates tokens per labeled prompt section plus a "total" entry.
func PromptTokens(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections)+1)
	total := 0
	for k, v := range sections {
		n := EstimateTokens(v)
		out[k] = n
		total += n
	}
	out["total"] = total
	return out
}
