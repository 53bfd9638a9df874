package router

import (
	"net/http"
	"strings"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/test/assert"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"HydroMed/config"
	"HydroMed/internal/handler"
	"HydroMed/internal/middleware"
	"HydroMed/pkg/token"
)

func newTestRouter(t *testing.T) *server.Hertz {
	t.Helper()
	config.Cfg.JWTSecret = "router-secret"
	config.Cfg.JWTExpireMinutes = 30
	assert.Nil(t, token.Init())
	assert.Nil(t, middleware.Init())

	h := server.Default()
	Register(h, handler.New(nil, nil, nil, nil, nil), Options{})
	return h
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t)
	w := ut.PerformRequest(h.Engine, http.MethodGet, "/healthz", nil)
	assert.DeepEqual(t, http.StatusOK, w.Result().StatusCode())
	assert.Assert(t, strings.Contains(string(w.Result().Body()), `"ok"`))
}

func TestV1RequiresToken(t *testing.T) {
	h := newTestRouter(t)
	for _, path := range []string{"/v1/hydration/goal", "/v1/notifications", "/v1/medications", "/v1/analytics/report-card"} {
		w := ut.PerformRequest(h.Engine, http.MethodGet, path, nil)
		assert.DeepEqual(t, http.StatusUnauthorized, w.Result().StatusCode())
	}
}

func TestAuthenticatedValidationReachesHandler(t *testing.T) {
	h := newTestRouter(t)
	tok, _, err := token.GenerateAccessToken(42)
	assert.Nil(t, err)

	w := ut.PerformRequest(h.Engine, http.MethodPost, "/v1/hydration",
		&ut.Body{Body: strings.NewReader(`{"amount_ml":0}`), Len: len(`{"amount_ml":0}`)},
		ut.Header{Key: "Authorization", Value: "Bearer " + tok},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
	assert.DeepEqual(t, http.StatusUnprocessableEntity, w.Result().StatusCode())
	assert.Assert(t, strings.Contains(string(w.Result().Body()), "amount_ml"))
}
