package dto

import (
	"time"

	"github.com/turtacn/keytrust/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorDTO   `json:"error,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorDTO 错误信息 DTO
type ErrorDTO struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// SuccessResponse 创建成功响应
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse 创建错误响应。内部原因不会暴露给调用方。
func ErrorResponse(err error, traceID string) *APIResponse {
	resp := errors.ToErrorResponse(err)
	return &APIResponse{
		Success: false,
		Error: &ErrorDTO{
			Code:        resp.Error,
			Description: resp.ErrorDescription,
		},
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}
