package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	goredis "github.com/redis/go-redis/v9"

	"HydroMed/internal/handler"
	"HydroMed/internal/middleware"
	"HydroMed/pkg/response"
)

// Options 路由层可选项
type Options struct {
	// 链路追踪中间件，需最先注册
	Tracing      app.HandlerFunc
	Recover      middleware.RecoverConfig
	AllowOrigins []string
	// 为 nil 时不启用限流
	RateLimitClient   goredis.Cmdable
	RequestsPerMinute int
	WritesPerMinute   int
	EnableHTTPMetrics bool
}

func Register(h *server.Hertz, hd *handler.Handler, opts Options) {
	if opts.Tracing != nil {
		h.Use(opts.Tracing)
	}
	h.Use(middleware.RecoverMiddleware(opts.Recover))
	h.Use(middleware.CORSMiddleware(opts.AllowOrigins))
	if opts.EnableHTTPMetrics {
		h.Use(middleware.MetricsMiddleware())
	}

	h.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		response.Success(ctx, c, map[string]string{"status": "ok"})
	})

	v1 := h.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	if opts.RateLimitClient != nil {
		v1.Use(middleware.RateLimitMiddleware(opts.RateLimitClient, middleware.GeneralRateLimitConfig(opts.RequestsPerMinute)))
	}
	write := writeLimit(opts)

	// 饮水
	hydration := v1.Group("/hydration")
	{
		hydration.POST("", append(write, hd.LogHydration)...)
		hydration.GET("/goal", hd.GetHydrationGoal)
		hydration.POST("/goal", append(write, hd.SetHydrationGoal)...)
		hydration.PUT("/profile", append(write, hd.UpdateHydrationProfile)...)
		hydration.GET("/pace", hd.GetHydrationPace)
		hydration.GET("/history", hd.GetHydrationHistory)
	}

	// 提醒记录
	notifications := v1.Group("/notifications")
	{
		notifications.GET("", hd.ListNotifications)
		notifications.POST("", append(write, hd.CreateNotification)...)
		notifications.POST("/sweep", append(write, hd.SweepNotifications)...)
		notifications.GET("/:id", hd.GetNotification)
		notifications.PUT("/:id", append(write, hd.UpdateNotification)...)
		notifications.DELETE("/:id", append(write, hd.DeleteNotification)...)
		notifications.POST("/:id/snooze", append(write, hd.SnoozeNotification)...)
		notifications.POST("/:id/complete", append(write, hd.CompleteNotification)...)
	}

	// 用药
	medications := v1.Group("/medications")
	{
		medications.GET("", hd.ListMedications)
		medications.POST("", append(write, hd.CreateMedication)...)
		medications.PUT("/:id", append(write, hd.UpdateMedication)...)
		medications.GET("/:id/history", hd.GetMedicationHistory)
		medications.POST("/:id/history", append(write, hd.LogAdherence)...)
	}

	// 统计
	analytics := v1.Group("/analytics")
	{
		analytics.GET("/report-card", hd.GetReportCard)
		analytics.GET("/patterns", hd.GetPatterns)
		analytics.GET("/snooze", hd.GetSnoozeSuggestions)
	}
}

// writeLimit 写接口额外叠加的限流中间件
func writeLimit(opts Options) []app.HandlerFunc {
	if opts.RateLimitClient == nil {
		return nil
	}
	return []app.HandlerFunc{
		middleware.RateLimitMiddleware(opts.RateLimitClient, middleware.WriteRateLimitConfig(opts.WritesPerMinute)),
	}
}
