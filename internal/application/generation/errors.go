package generation

import (
	"errors"
	"fmt"
)

// 模板错误
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateParse    = errors.New("template parse error")
	ErrTemplateVariable = errors.New("missing required template variable")
)

// 上下文错误
var (
	ErrBudgetTooSmall  = errors.New("token budget too small for highest-priority context")
	ErrContextAssembly = errors.New("context assembly failed")
)

// 草稿错误
var (
	ErrDraftNotFound     = errors.New("draft not found")
	ErrInvalidTransition = errors.New("invalid draft transition")
	ErrDraftBusy         = errors.New("draft is being updated")
	ErrInvalidContent    = errors.New("invalid draft content")
)

// 生成阶段错误（作为 Error.Stage 的哨兵值，可用 errors.Is 判断）
var (
	ErrInvalidRequest   = errors.New("invalid generation request")
	ErrNoTemplate       = errors.New("no template for generation type")
	ErrContextFailure   = errors.New("context assembly stage failed")
	ErrLLMFailure       = errors.New("llm call failed")
	ErrGroundingFailure = errors.New("grounding stage failed")
	ErrClaimExtraction  = errors.New("claim extraction failed")
	ErrProposeFailure   = errors.New("draft proposal failed")
)

// Error 生成流程错误：Stage 标明失败阶段，Err 保留原始原因
type Error struct {
	Stage error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Stage.Error()
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap 同时暴露阶段与原因，errors.Is 可匹配二者
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Stage}
	}
	return []error{e.Stage, e.Err}
}

func stageError(stage, err error) *Error {
	return &Error{Stage: stage, Err: err}
}
