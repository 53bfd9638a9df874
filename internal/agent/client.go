package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"

	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/pkg/breaker"
)

// StatusError 服务端返回的非 2xx 响应
type StatusError struct {
	Body   string
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsPermanent 除 408/429 外的 4xx 重试也不会成功
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.Code == http.StatusRequestTimeout || se.Code == http.StatusTooManyRequests {
		return false
	}
	return se.Code >= 400 && se.Code < 500
}

// Sender 发送一次 JSON 请求
type Sender interface {
	Send(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

// APIClient 服务端 API 客户端，所有请求经过熔断器
type APIClient struct {
	hc      *client.Client
	breaker *breaker.CircuitBreaker
	baseURL string
	token   string
}

func NewAPIClient(cfg ServerConfig) (*APIClient, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	hc, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	return &APIClient{
		hc:      hc,
		breaker: breaker.New("hydromed-api", failures, time.Duration(cfg.BreakerReset)*time.Second),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}, nil
}

// Send 4xx 不计入熔断失败
func (c *APIClient) Send(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var out []byte
	var statusErr error

	err := c.breaker.Call(func() error {
		req := protocol.AcquireRequest()
		resp := protocol.AcquireResponse()
		defer protocol.ReleaseRequest(req)
		defer protocol.ReleaseResponse(resp)

		req.SetRequestURI(c.baseURL + path)
		req.SetMethod(method)
		req.Header.SetContentTypeBytes([]byte("application/json"))
		if c.token != "" {
			req.SetHeader("Authorization", "Bearer "+c.token)
		}
		if len(body) > 0 {
			req.SetBody(body)
		}

		if err := c.hc.Do(ctx, req, resp); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		code := resp.StatusCode()
		if code >= 200 && code < 300 {
			out = append([]byte(nil), resp.Body()...)
			return nil
		}

		se := &StatusError{Method: method, Path: path, Code: code, Body: string(resp.Body())}
		if code < 500 {
			statusErr = se
			return nil
		}
		return se
	})
	if err != nil {
		return nil, err
	}
	if statusErr != nil {
		return nil, statusErr
	}
	return out, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *APIClient) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	raw, err := c.Send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(env.Data, out)
}

// ListMedications GET /v1/medications
func (c *APIClient) ListMedications(ctx context.Context) ([]model.Medication, error) {
	var meds []model.Medication
	if err := c.call(ctx, http.MethodGet, "/v1/medications", nil, &meds); err != nil {
		return nil, err
	}
	return meds, nil
}

// GetGoal GET /v1/hydration/goal
func (c *APIClient) GetGoal(ctx context.Context) (*dto.GoalResponse, error) {
	var goal dto.GoalResponse
	if err := c.call(ctx, http.MethodGet, "/v1/hydration/goal", nil, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}
