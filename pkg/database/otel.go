package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

var (
	dbQueriesTotal  metric.Int64Counter
	dbQueryDuration metric.Float64Histogram

	sensitiveSQL = regexp.MustCompile(`(?i)(password|token|secret)\s*=\s*'[^']*'`)
)

// InitDatabaseMetrics 初始化数据库指标
func InitDatabaseMetrics(meter metric.Meter) error {
	var err error

	dbQueriesTotal, err = meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	return err
}

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer trace.Tracer
	config PluginConfig
}

// PluginConfig 插件配置
type PluginConfig struct {
	ServiceName  string
	MaxSQLLength int
}

// DefaultPluginConfig 默认插件配置
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ServiceName:  "hydromed",
		MaxSQLLength: 500,
	}
}

// NewOTELPlugin 创建插件实例
func NewOTELPlugin(config PluginConfig) *OTELPlugin {
	if config.ServiceName == "" {
		config.ServiceName = "hydromed"
	}
	if config.MaxSQLLength <= 0 {
		config.MaxSQLLength = 500
	}

	return &OTELPlugin{
		tracer: otel.Tracer(config.ServiceName + ".gorm"),
		config: config,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 为 query/create/update/delete/row/raw 注册前后回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	errs := []error{
		cb.Query().Before("gorm:query").Register("otel:before_query", p.before),
		cb.Query().After("gorm:query").Register("otel:after_query", p.after),
		cb.Create().Before("gorm:create").Register("otel:before_create", p.before),
		cb.Create().After("gorm:create").Register("otel:after_create", p.after),
		cb.Update().Before("gorm:update").Register("otel:before_update", p.before),
		cb.Update().After("gorm:update").Register("otel:after_update", p.after),
		cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before),
		cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after),
		cb.Row().Before("gorm:row").Register("otel:before_row", p.before),
		cb.Row().After("gorm:row").Register("otel:after_row", p.after),
		cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before),
		cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after),
	}
	return errors.Join(errs...)
}

func (p *OTELPlugin) before(db *gorm.DB) {
	attrs := []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("service.name", p.config.ServiceName),
	}
	if table := db.Statement.Table; table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
	}

	ctx, span := p.tracer.Start(db.Statement.Context, "db."+db.Statement.Table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	db.InstanceSet(startKey, time.Now())
	db.InstanceSet(spanKey, span)
	db.Statement.Context = ctx
}

func (p *OTELPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation := operationOf(db.Statement.SQL.String())
	span.SetName(operation)
	span.SetAttributes(
		semconv.DBOperation(operation),
		semconv.DBStatement(p.sanitizeSQL(db.Statement.SQL.String())),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	status := "success"
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		span.SetStatus(codes.Ok, "record not found")
	default:
		status = "error"
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := db.InstanceGet(startKey); ok {
		if t, ok := start.(time.Time); ok {
			recordMetrics(db.Statement.Context, operation, status, time.Since(t).Seconds())
		}
	}
}

func recordMetrics(ctx context.Context, operation, status string, seconds float64) {
	if dbQueriesTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.status", status),
	)
	dbQueriesTotal.Add(ctx, 1, attrs)
	dbQueryDuration.Record(ctx, seconds, attrs)
}

// operationOf 从 SQL 提取操作类型
func operationOf(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return "db." + strings.ToLower(op)
		}
	}
	if sql == "" {
		return "db.unknown"
	}
	return "db.query"
}

// sanitizeSQL 截断并遮盖敏感字段
func (p *OTELPlugin) sanitizeSQL(sql string) string {
	if len(sql) > p.config.MaxSQLLength {
		sql = sql[:p.config.MaxSQLLength] + "..."
	}
	return sensitiveSQL.ReplaceAllString(sql, "$1='***'")
}

// WithDefaultOTELPlugin 使用默认配置添加 OpenTelemetry 插件
func WithDefaultOTELPlugin(db *gorm.DB, serviceName string) error {
	config := DefaultPluginConfig()
	config.ServiceName = serviceName
	return db.Use(NewOTELPlugin(config))
}
