package node

import "strings"

// responseFormatHints 供应商拒绝 JSON 模式时错误信息中常见的片段
var responseFormatHints = []string{
	"response_format",
	"json_schema",
	"response_schema",
	"json mode",
	"failed to parse",
}

// IsResponseFormatUnsupportedError 判断错误是否源于模型不支持 JSON 输出模式，
// 命中时调用方应去掉 response_format 只依靠提示词重试
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range responseFormatHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	if !strings.Contains(msg, "response") {
		return false
	}
	return strings.Contains(msg, "unknown parameter") || strings.Contains(msg, "invalid")
}
