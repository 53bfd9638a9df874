package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"HydroMed/internal/analytics"
	"HydroMed/internal/goal"
	"HydroMed/internal/middleware"
	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/internal/service"
	pkgerrors "HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/response"
	"HydroMed/utils"
)

// NotificationService 通知状态机
type NotificationService interface {
	Create(ctx context.Context, userID int64, req dto.CreateNotificationRequest) (*model.Notification, error)
	Get(ctx context.Context, userID, id int64) (*model.Notification, error)
	List(ctx context.Context, userID int64, q dto.ListNotificationsQuery) ([]model.Notification, error)
	Delete(ctx context.Context, userID, id int64) error
	Update(ctx context.Context, userID, id int64, req dto.UpdateNotificationRequest) (*model.Notification, error)
	Snooze(ctx context.Context, userID, id int64, minutes int) (*model.Notification, error)
	Complete(ctx context.Context, userID, id int64) (*dto.CompleteResponse, error)
	Sweep(ctx context.Context, userID int64, threshold time.Duration) ([]int64, error)
}

// HydrationService 饮水记录与目标
type HydrationService interface {
	Log(ctx context.Context, userID int64, req dto.LogHydrationRequest) (*dto.HydrationEntryResponse, error)
	SetGoal(ctx context.Context, userID int64, goalML int) (*dto.GoalResponse, error)
	GetGoal(ctx context.Context, userID int64) (*dto.GoalResponse, error)
	UpdateProfile(ctx context.Context, userID int64, req dto.UpdateProfileRequest) (*dto.GoalResponse, error)
	Pace(ctx context.Context, userID int64) (*goal.Pace, error)
	History(ctx context.Context, userID int64, q dto.HistoryQuery) (*analytics.Series, error)
}

// MedicationService 用药计划
type MedicationService interface {
	Create(ctx context.Context, userID int64, req dto.CreateMedicationRequest) (*model.Medication, error)
	List(ctx context.Context, userID int64) ([]model.Medication, error)
	SetActive(ctx context.Context, userID, id int64, active bool) (*model.Medication, error)
	History(ctx context.Context, userID, medicationID int64, limit int) ([]model.MedicationHistoryEntry, error)
}

// AdherenceService 服药记录去重写入
type AdherenceService interface {
	Record(ctx context.Context, userID, medicationID int64, req dto.LogAdherenceRequest) (*dto.AdherenceResult, error)
}

// AnalyticsService 周报与模式分析
type AnalyticsService interface {
	ReportCard(ctx context.Context, userID int64) (*analytics.ReportCard, error)
	Patterns(ctx context.Context, userID int64, days int, loc *time.Location) ([]analytics.Pattern, error)
	Snoozes(ctx context.Context, userID int64, days int, loc *time.Location) ([]analytics.SnoozeSuggestion, error)
}

// Handler 持有各业务服务，在 main 中构造后注册到路由
type Handler struct {
	notifications NotificationService
	hydration     HydrationService
	medications   MedicationService
	adherence     AdherenceService
	analytics     AnalyticsService
}

func New(
	notifications NotificationService,
	hydration HydrationService,
	medications MedicationService,
	adherence AdherenceService,
	analytics AnalyticsService,
) *Handler {
	return &Handler{
		notifications: notifications,
		hydration:     hydration,
		medications:   medications,
		adherence:     adherence,
		analytics:     analytics,
	}
}

// currentUser 认证中间件之后必然存在，缺失时按 401 处理
func currentUser(ctx context.Context, c *app.RequestContext) (int64, bool) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.InvalidUserID)
		return 0, false
	}
	return userID, true
}

// bind 绑定请求并做字段校验，失败时已写出 400/422
func bind(ctx context.Context, c *app.RequestContext, req interface{}) bool {
	if err := c.Bind(req); err != nil {
		response.BindError(ctx, c, err)
		return false
	}
	if fields := utils.ValidateStruct(req); fields != nil {
		response.ValidationError(ctx, c, fields)
		return false
	}
	return true
}

func pathID(ctx context.Context, c *app.RequestContext, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(ctx, c, pkgerrors.InvalidRequest)
		return 0, false
	}
	return id, true
}

// fail 业务错误按错误码映射，其它错误记日志后返回 500
func fail(ctx context.Context, c *app.RequestContext, err error) {
	var conflict *service.AdherenceConflictError
	if errors.As(err, &conflict) {
		response.ErrorWithDetails(ctx, c, conflict.Def, map[string]interface{}{
			"existing": conflict.Existing,
		})
		return
	}

	if _, ok := pkgerrors.As(err); !ok {
		logger.Logger.Error("Request failed",
			zap.String("method", string(c.Method())),
			zap.String("path", string(c.Path())),
			zap.Error(err),
		)
	}
	response.Error(ctx, c, err)
}
