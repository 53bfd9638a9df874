package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	dbotel "HydroMed/pkg/database"
	"HydroMed/pkg/metrics"
	mqotel "HydroMed/pkg/mq"
	redisotel "HydroMed/pkg/redis"
)

// Setup 初始化 provider 以及各组件指标，返回清理函数和进程内共享的 Meter
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, metric.Meter, error) {
	shutdown, err := InitOpenTelemetry(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	meter := otel.Meter(cfg.ServiceName)
	inits := []struct {
		name string
		init func() error
	}{
		{"business", metrics.InitMetrics},
		{"database", func() error { return dbotel.InitDatabaseMetrics(meter) }},
		{"redis", func() error { return redisotel.InitRedisMetrics(meter) }},
		{"rabbitmq", func() error { return mqotel.InitMQMetrics(meter) }},
	}
	for _, i := range inits {
		if err := i.init(); err != nil {
			_ = shutdown(ctx)
			return nil, nil, fmt.Errorf("failed to initialize %s metrics: %w", i.name, err)
		}
	}

	return shutdown, meter, nil
}
