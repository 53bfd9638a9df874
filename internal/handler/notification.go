package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"HydroMed/internal/model/dto"
	"HydroMed/pkg/response"
)

// ListNotifications 查询提醒记录
// GET /v1/notifications?status=&type=&limit=
func (h *Handler) ListNotifications(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var q dto.ListNotificationsQuery
	if !bind(ctx, c, &q) {
		return
	}

	ns, err := h.notifications.List(ctx, userID, q)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, ns, map[string]interface{}{"count": len(ns)})
}

// CreateNotification 新建提醒记录
// POST /v1/notifications
func (h *Handler) CreateNotification(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var req dto.CreateNotificationRequest
	if !bind(ctx, c, &req) {
		return
	}

	n, err := h.notifications.Create(ctx, userID, req)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Created(ctx, c, n)
}

// GetNotification 查询单条提醒
// GET /v1/notifications/:id
func (h *Handler) GetNotification(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}

	n, err := h.notifications.Get(ctx, userID, id)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, n)
}

// UpdateNotification 修改时间或状态
// PUT /v1/notifications/:id
func (h *Handler) UpdateNotification(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}
	var req dto.UpdateNotificationRequest
	if !bind(ctx, c, &req) {
		return
	}

	n, err := h.notifications.Update(ctx, userID, id, req)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, n)
}

// DeleteNotification 用户主动删除
// DELETE /v1/notifications/:id
func (h *Handler) DeleteNotification(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}

	if err := h.notifications.Delete(ctx, userID, id); err != nil {
		fail(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

// SnoozeNotification 稍后提醒
// POST /v1/notifications/:id/snooze
func (h *Handler) SnoozeNotification(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}
	var req dto.SnoozeRequest
	if !bind(ctx, c, &req) {
		return
	}

	n, err := h.notifications.Snooze(ctx, userID, id, req.Minutes)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, n)
}

// CompleteNotification 标记完成，饮水提醒会带回续链的下一条
// POST /v1/notifications/:id/complete
func (h *Handler) CompleteNotification(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}

	res, err := h.notifications.Complete(ctx, userID, id)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, res)
}

// SweepNotifications 扫描当前用户超时未处理的提醒
// POST /v1/notifications/sweep
func (h *Handler) SweepNotifications(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var req dto.SweepRequest
	if len(c.Request.Body()) > 0 && !bind(ctx, c, &req) {
		return
	}

	ids, err := h.notifications.Sweep(ctx, userID, time.Duration(req.ThresholdMinutes)*time.Minute)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.SweepResponse{MissedIDs: ids, Count: len(ids)})
}
