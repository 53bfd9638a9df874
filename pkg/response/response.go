package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"HydroMed/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// StatusOf 根据错误码映射 HTTP 状态码
func StatusOf(err error) int {
	def, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch def.Code {
	case errors.TooManyRequests.Code:
		return http.StatusTooManyRequests // 429
	case errors.InvalidRequest.Code:
		return http.StatusBadRequest // 400
	case errors.Unauthorized.Code, errors.InvalidUserID.Code:
		return http.StatusUnauthorized // 401
	case errors.NotificationNotFound.Code, errors.MedicationNotFound.Code:
		return http.StatusNotFound // 404
	case errors.AdherenceDuplicate.Code, errors.AdherenceDowngrade.Code,
		errors.AdherenceLockFailed.Code, errors.NotificationSnoozeBlocked.Code,
		errors.NotificationTransition.Code:
		return http.StatusConflict // 409
	case errors.ValidationFailed.Code, errors.NotificationPayloadType.Code,
		errors.HydrationAmountInvalid.Code, errors.HydrationGoalInvalid.Code,
		errors.HydrationRangeInvalid.Code:
		return http.StatusUnprocessableEntity // 422
	default:
		return http.StatusInternalServerError // 500
	}
}

func body(err error, details map[string]interface{}) ErrorResponse {
	var code, message string
	if def, ok := errors.As(err); ok {
		code = def.Code
		message = def.Message
	} else {
		code = errors.InternalError.Code
		message = errors.InternalError.Message
	}

	return ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(StatusOf(err), body(err, nil))
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	c.JSON(StatusOf(err), body(err, details))
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

// Created 返回 201，用于新建资源
func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// ValidationError 返回 422 和字段级错误信息
func ValidationError(ctx context.Context, c *app.RequestContext, fields map[string]string) {
	ErrorWithDetails(ctx, c, errors.ValidationFailed, map[string]interface{}{
		"fields": fields,
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
