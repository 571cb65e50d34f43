// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campaign-forge-api/pkg/errors"
)

// TraceIDKey gin.Context 中 trace_id 的键，由 TraceContext 中间件写入
const TraceIDKey = "trace_id"

// Response 统一响应结构
type Response[T any] struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    T         `json:"data,omitempty"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ErrorDetail 错误详情；Details 只在 4xx 时填充
type ErrorDetail struct {
	ErrorCode   string   `json:"error_code,omitempty"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func write[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{
		Code:    status,
		Message: message,
		Data:    data,
		Meta:    meta,
		TraceID: c.GetString(TraceIDKey),
	})
}

// Success 返回 200
func Success[T any](c *gin.Context, data T) {
	write(c, http.StatusOK, "success", data, nil)
}

// SuccessWithPage 返回带分页的 200
func SuccessWithPage[T any](c *gin.Context, data T, meta *PageMeta) {
	write(c, http.StatusOK, "success", data, meta)
}

// Created 返回 201，用于新生成的草稿
func Created[T any](c *gin.Context, data T) {
	write(c, http.StatusCreated, "created", data, nil)
}

// ErrorWithDetail 返回带详情的错误响应
func ErrorWithDetail(c *gin.Context, httpCode int, message string, detail *ErrorDetail) {
	c.JSON(httpCode, ErrorResponse{
		Code:    httpCode,
		Message: message,
		Error:   detail,
		TraceID: c.GetString(TraceIDKey),
	})
}

// BadRequest 返回 400，用于绑定或校验失败
func BadRequest(c *gin.Context, message string) {
	ErrorWithDetail(c, http.StatusBadRequest, message, &ErrorDetail{ErrorCode: string(errors.CodeInvalidParam)})
}

// TooManyRequests 返回 429
func TooManyRequests(c *gin.Context, message string, detail *ErrorDetail) {
	ErrorWithDetail(c, http.StatusTooManyRequests, message, detail)
}

// NewPageMeta 创建分页元数据；pageSize 非正数时按单页处理
func NewPageMeta(page, pageSize, total int) *PageMeta {
	if pageSize <= 0 {
		pageSize = total
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return &PageMeta{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}
