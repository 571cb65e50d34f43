// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 资源错误 (3xxx)
	CodeCampaignNotFound ErrorCode = "3001"
	CodeDraftNotFound    ErrorCode = "3002"
	CodeTemplateNotFound ErrorCode = "3003"

	// 业务错误 (4xxx)
	CodeGenerationFailed  ErrorCode = "4001"
	CodeBudgetTooSmall    ErrorCode = "4002"
	CodeContextFailed     ErrorCode = "4003"
	CodeGroundingFailed   ErrorCode = "4004"
	CodeLLMCallFailed     ErrorCode = "4005"
	CodeClaimExtraction   ErrorCode = "4006"
	CodeInvalidTransition ErrorCode = "4007"
	CodeDraftBusy         ErrorCode = "4008"
	CodeTemplateInvalid   ErrorCode = "4009"
	CodeQuotaExceeded     ErrorCode = "4010"

	// 外部服务错误 (5xxx)
	CodeDatabaseError ErrorCode = "5001"
	CodeCacheError    ErrorCode = "5002"
	CodeSearchError   ErrorCode = "5003"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 返回带详细信息的副本，避免修改预定义错误。
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeBudgetTooSmall, CodeTemplateInvalid:
		return http.StatusBadRequest
	case CodeNotFound, CodeCampaignNotFound, CodeDraftNotFound, CodeTemplateNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeDraftBusy:
		return http.StatusConflict
	case CodeTooManyRequests, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeLLMCallFailed, CodeSearchError:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrCampaignNotFound = New(CodeCampaignNotFound, "campaign not found")
	ErrDraftNotFound    = New(CodeDraftNotFound, "draft not found")
	ErrTemplateNotFound = New(CodeTemplateNotFound, "template not found")

	ErrGenerationFailed = New(CodeGenerationFailed, "content generation failed")
	ErrLLMCallFailed    = New(CodeLLMCallFailed, "LLM call failed")
	ErrQuotaExceeded    = New(CodeQuotaExceeded, "daily token quota exceeded")
)

// IsAppError 检查是否为 AppError（支持包装链）
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
