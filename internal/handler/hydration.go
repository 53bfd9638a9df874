package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HydroMed/internal/model/dto"
	"HydroMed/pkg/response"
)

// LogHydration 记录一次饮水
// POST /v1/hydration
func (h *Handler) LogHydration(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var req dto.LogHydrationRequest
	if !bind(ctx, c, &req) {
		return
	}

	entry, err := h.hydration.Log(ctx, userID, req)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Created(ctx, c, entry)
}

// SetHydrationGoal 设置每日目标
// POST /v1/hydration/goal
func (h *Handler) SetHydrationGoal(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var req dto.SetGoalRequest
	if !bind(ctx, c, &req) {
		return
	}

	res, err := h.hydration.SetGoal(ctx, userID, req.GoalML)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, res)
}

// GetHydrationGoal 当前目标与理想目标
// GET /v1/hydration/goal
func (h *Handler) GetHydrationGoal(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	res, err := h.hydration.GetGoal(ctx, userID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, res)
}

// UpdateHydrationProfile 更新画像
// PUT /v1/hydration/profile
func (h *Handler) UpdateHydrationProfile(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var req dto.UpdateProfileRequest
	if !bind(ctx, c, &req) {
		return
	}

	res, err := h.hydration.UpdateProfile(ctx, userID, req)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, res)
}

// GetHydrationPace 今日进度
// GET /v1/hydration/pace
func (h *Handler) GetHydrationPace(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	pace, err := h.hydration.Pace(ctx, userID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, pace)
}

// GetHydrationHistory 分桶历史
// GET /v1/hydration/history?range=daily|weekly|monthly&start=&end=
func (h *Handler) GetHydrationHistory(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var q dto.HistoryQuery
	if !bind(ctx, c, &q) {
		return
	}

	series, err := h.hydration.History(ctx, userID, q)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, series)
}
