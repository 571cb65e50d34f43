package handler

import (
	"context"
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/quota"
	"campaign-forge-api/internal/interfaces/http/dto"
	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/errors"
	"campaign-forge-api/pkg/logger"
)

// errorMapping 领域错误到应用错误码；按顺序匹配，具体原因在阶段之前
var errorMapping = []struct {
	target error
	code   errors.ErrorCode
	msg    string
}{
	{port.ErrCampaignNotFound, errors.CodeCampaignNotFound, "campaign not found"},
	{generation.ErrDraftNotFound, errors.CodeDraftNotFound, "draft not found"},
	{generation.ErrTemplateNotFound, errors.CodeTemplateNotFound, "template not found"},
	{generation.ErrNoTemplate, errors.CodeTemplateNotFound, "template not found"},
	{generation.ErrInvalidTransition, errors.CodeInvalidTransition, "invalid draft transition"},
	{generation.ErrDraftBusy, errors.CodeDraftBusy, "draft is being updated"},
	{generation.ErrInvalidContent, errors.CodeInvalidParam, "invalid draft content"},
	{generation.ErrBudgetTooSmall, errors.CodeBudgetTooSmall, "token budget too small"},
	{generation.ErrInvalidRequest, errors.CodeInvalidParam, "invalid generation request"},
	{generation.ErrTemplateParse, errors.CodeTemplateInvalid, "invalid template"},
	{generation.ErrTemplateVariable, errors.CodeTemplateInvalid, "missing template variable"},
	{generation.ErrLLMFailure, errors.CodeLLMCallFailed, "LLM call failed"},
	{generation.ErrClaimExtraction, errors.CodeClaimExtraction, "failed to extract claims from output"},
	{generation.ErrGroundingFailure, errors.CodeGroundingFailed, "grounding failed"},
	{generation.ErrContextFailure, errors.CodeContextFailed, "context assembly failed"},
	{generation.ErrContextAssembly, errors.CodeContextFailed, "context assembly failed"},
}

// toAppError 将领域错误转换为 AppError
func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var quotaErr quota.TokenQuotaExceededError
	if stderrors.As(err, &quotaErr) {
		return errors.Wrap(err, errors.CodeQuotaExceeded, "daily token quota exceeded")
	}
	for _, m := range errorMapping {
		if stderrors.Is(err, m.target) {
			return errors.Wrap(err, m.code, m.msg)
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "request timed out")
	}
	return errors.Wrap(err, errors.CodeInternalError, "internal server error")
}

// respondError 统一错误响应：4xx 返回原因，5xx 仅记录日志
func respondError(c *gin.Context, op string, err error) {
	ctx := c.Request.Context()
	appErr := toAppError(err)

	detail := &dto.ErrorDetail{ErrorCode: string(appErr.Code)}
	if appErr.HTTPStatus >= 500 {
		logger.Error(ctx, op+" failed", err, "code", string(appErr.Code))
	} else {
		logger.Warn(ctx, op+" rejected", "code", string(appErr.Code), "error", err.Error())
		detail.Details = err.Error()
	}
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, detail)
}
