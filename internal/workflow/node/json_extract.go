package node

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject 模型输出中找不到可解析的 JSON 对象
var ErrNoJSONObject = errors.New("no json object found in model output")

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ExtractJSONObject 从模型输出中截取第一个完整 JSON 对象。
// 优先使用 ```json 代码块，其次按括号配对扫描第一个 {...}（忽略字符串内的括号）。
func ExtractJSONObject(s string) (json.RawMessage, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, ErrNoJSONObject
	}

	for _, m := range fencedJSON.FindAllStringSubmatch(raw, -1) {
		body := strings.TrimSpace(m[1])
		if obj, ok := firstBalancedObject(body); ok && json.Valid([]byte(obj)) {
			return json.RawMessage(obj), nil
		}
	}

	// 模型可能在 JSON 前后夹杂说明文字，逐个起点尝试
	for start := strings.Index(raw, "{"); start >= 0; {
		if obj, ok := firstBalancedObject(raw[start:]); ok && json.Valid([]byte(obj)) {
			return json.RawMessage(obj), nil
		}
		next := strings.Index(raw[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoJSONObject
}

// firstBalancedObject 返回从第一个 '{' 开始、括号配平的子串
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
