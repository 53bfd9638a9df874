package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"HydroMed/internal/model/dto"
	"HydroMed/internal/service"
	"HydroMed/pkg/response"
)

// ListMedications 用药计划列表
// GET /v1/medications
func (h *Handler) ListMedications(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	ms, err := h.medications.List(ctx, userID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, ms)
}

// CreateMedication 新增用药计划
// POST /v1/medications
func (h *Handler) CreateMedication(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var req dto.CreateMedicationRequest
	if !bind(ctx, c, &req) {
		return
	}

	m, err := h.medications.Create(ctx, userID, req)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Created(ctx, c, m)
}

// UpdateMedication 停用或恢复用药计划
// PUT /v1/medications/:id
func (h *Handler) UpdateMedication(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}
	var req dto.UpdateMedicationRequest
	if !bind(ctx, c, &req) {
		return
	}

	m, err := h.medications.SetActive(ctx, userID, id, *req.Active)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, m)
}

// GetMedicationHistory 服药记录，最新在前
// GET /v1/medications/:id/history?limit=
func (h *Handler) GetMedicationHistory(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	es, err := h.medications.History(ctx, userID, id, limit)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, es)
}

// LogAdherence 记录服药或跳过；新建 201，升级 200，冲突 409
// POST /v1/medications/:id/history
func (h *Handler) LogAdherence(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "id")
	if !ok {
		return
	}
	var req dto.LogAdherenceRequest
	if !bind(ctx, c, &req) {
		return
	}

	res, err := h.adherence.Record(ctx, userID, id, req)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	if res.Outcome == service.OutcomeCreated {
		response.Created(ctx, c, res)
		return
	}
	response.Success(ctx, c, res)
}
