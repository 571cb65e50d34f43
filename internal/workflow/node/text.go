package node

import "unicode/utf8"

// charsPerToken 粗略估算：约 4 个字符一个 token
const charsPerToken = 4

// EstimateTokens 按 ceil(runes/4) 估算 token 数；全系统统一使用该口径
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// RunesForTokens 给定 token 上限可容纳的最大字符数
func RunesForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * charsPerToken
}

func TruncateByRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
