package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 生产环境只返回通用错误
	IsProduction bool
	// 是否记录堆栈
	EnableStackTrace bool
	// 是否在 span 中记录异常
	RecordInSpan bool
}

// RecoverMiddleware 捕获 handler 中的 panic，返回 500
func RecoverMiddleware(config RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if r := recover(); r != nil {
				handlePanic(ctx, c, r, config)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, r interface{}, config RecoverConfig) {
	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", r)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", string(c.GetHeader("X-Request-Id"))),
	}
	if userID, ok := GetUserID(ctx, c); ok {
		fields = append(fields, zap.Int64("user_id", userID))
	}

	var stack []byte
	if config.EnableStackTrace {
		stack = trimRuntimeFrames(debug.Stack())
		fields = append(fields, zap.ByteString("stack", stack))
	}

	if config.RecordInSpan {
		span := trace.SpanFromContext(ctx)
		span.RecordError(fmt.Errorf("panic: %v", r))
		span.SetStatus(codes.Error, "panic recovered")
	}

	logger.Logger.Error("[PANIC RECOVERED]", fields...)

	if config.IsProduction {
		response.Error(ctx, c, errors.InternalError)
	} else {
		response.ErrorWithDetails(ctx, c, errors.InternalError, map[string]interface{}{
			"panic": fmt.Sprintf("%v", r),
		})
	}
	c.Abort()
}

// trimRuntimeFrames 去掉 runtime 包内的栈帧
func trimRuntimeFrames(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")
	filtered := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "runtime/") || strings.HasPrefix(lines[i], "runtime.") {
			i++ // 同时跳过下一行的文件位置
			continue
		}
		filtered = append(filtered, lines[i])
	}
	return []byte(strings.Join(filtered, "\n"))
}
