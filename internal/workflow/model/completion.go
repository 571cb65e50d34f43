package model

// CompletionInput 一次战役内容补全的输入：Prompt 为已组装好的完整上下文
type CompletionInput struct {
	Workflow   string
	CampaignID string

	Prompt string
	// RepairOutput 非空时改走修复 prompt：要求模型把这段输出整理为单个 JSON 对象
	RepairOutput string

	Provider string
	Model    string

	Temperature *float32
	MaxTokens   *int

	// JSONMode 请求 response_format=json_object；服务端不支持时自动退回纯 prompt 约束
	JSONMode bool
}

type CompletionOutput struct {
	Content string
	Meta    LLMUsageMeta
}
