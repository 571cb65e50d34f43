package retrieval

import "strings"

// splitByRunes 按 rune 切分并保留 overlap；优先在句末或换行处断开
func splitByRunes(s string, maxRunes int, overlapRunes int) []string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil
	}
	if maxRunes <= 0 {
		return []string{raw}
	}
	if overlapRunes < 0 || overlapRunes >= maxRunes {
		overlapRunes = 0
	}
	runes := []rune(raw)
	if len(runes) <= maxRunes {
		return []string{raw}
	}

	out := make([]string, 0, len(runes)/maxRunes+1)
	for start := 0; start < len(runes); {
		end := start + maxRunes
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastBoundary(runes[start:end]); cut > maxRunes/2 {
			end = start + cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlapRunes
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// lastBoundary 返回最后一个句末标点或换行之后的位置；没有则返回 -1
func lastBoundary(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		switch rs[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return -1
}
