package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"HydroMed/internal/model/dto"
	"HydroMed/pkg/response"
)

// GetReportCard 最近 7 天周报
// GET /v1/analytics/report-card
func (h *Handler) GetReportCard(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	card, err := h.analytics.ReportCard(ctx, userID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, card)
}

// GetPatterns 漏服模式
// GET /v1/analytics/patterns?days=&tz=
func (h *Handler) GetPatterns(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var q dto.AnalyticsQuery
	if !bind(ctx, c, &q) {
		return
	}

	loc, ok := location(ctx, c, q.TZ)
	if !ok {
		return
	}

	patterns, err := h.analytics.Patterns(ctx, userID, q.Days, loc)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, patterns)
}

// GetSnoozeSuggestions 推迟习惯与建议时间
// GET /v1/analytics/snooze?days=&tz=
func (h *Handler) GetSnoozeSuggestions(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	var q dto.AnalyticsQuery
	if !bind(ctx, c, &q) {
		return
	}

	loc, ok := location(ctx, c, q.TZ)
	if !ok {
		return
	}

	suggestions, err := h.analytics.Snoozes(ctx, userID, q.Days, loc)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(ctx, c, suggestions)
}

// location 空字符串为 UTC
func location(ctx context.Context, c *app.RequestContext, tz string) (*time.Location, bool) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		response.ValidationError(ctx, c, map[string]string{"tz": "must be a valid IANA time zone"})
		return nil, false
	}
	return loc, true
}
