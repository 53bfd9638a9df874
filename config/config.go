package config

import (
	"errors"
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"hydromed"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"hydromed"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	// 只读副本，逗号分隔的完整 DSN，分析和历史查询走副本
	PostgreSQLReplicaDSNs string `env:"POSTGRESQL_REPLICA_DSNS" envDefault:""`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"hydromed"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置
	JWTSecret        string `env:"JWT_SECRET"` // 必填，用于校验 JWT
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string  `env:"TRACING_ENDPOINT" envDefault:"localhost:4317"`
	TracingSampler  float64 `env:"TRACING_SAMPLER" envDefault:"0.1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"100"`
	RateLimitWrites    int  `env:"RATE_LIMIT_WRITES_PER_MINUTE" envDefault:"30"`

	// 逗号分隔，为空时回显 Origin
	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:""`

	// 提醒与通知
	HydrationDefaultIntervalMinutes int  `env:"HYDRATION_DEFAULT_INTERVAL_MINUTES" envDefault:"60"`
	SnoozeAllowCompleted            bool `env:"NOTIFICATION_SNOOZE_ALLOW_COMPLETED" envDefault:"true"`
	MissedThresholdMinutes          int  `env:"MISSED_THRESHOLD_MINUTES" envDefault:"30"`
	SweepIntervalMinutes            int  `env:"SWEEP_INTERVAL_MINUTES" envDefault:"5"`

	// 依从性记录
	AdherenceWindowMinutes int `env:"ADHERENCE_WINDOW_MINUTES" envDefault:"120"`
	ReportCacheMinutes     int `env:"REPORT_CACHE_MINUTES" envDefault:"10"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
}

// Validate 服务端进程启动时调用，agent 不依赖这些配置
func Validate() error {
	if Cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	if Cfg.HydrationDefaultIntervalMinutes <= 0 {
		return errors.New("HYDRATION_DEFAULT_INTERVAL_MINUTES must be positive")
	}

	if Cfg.MissedThresholdMinutes <= 0 {
		return errors.New("MISSED_THRESHOLD_MINUTES must be positive")
	}

	if !Cfg.SnoozeAllowCompleted {
		log.Printf("WARN: NOTIFICATION_SNOOZE_ALLOW_COMPLETED=false, snoozing completed notifications will be rejected")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

// GetCORSOrigins 解析允许的跨域来源
func (c *Config) GetCORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// GetReplicaDSNs 解析只读副本 DSN 列表
func (c *Config) GetReplicaDSNs() []string {
	if strings.TrimSpace(c.PostgreSQLReplicaDSNs) == "" {
		return nil
	}

	var dsns []string
	for _, dsn := range strings.Split(c.PostgreSQLReplicaDSNs, ",") {
		if dsn = strings.TrimSpace(dsn); dsn != "" {
			dsns = append(dsns, dsn)
		}
	}
	return dsns
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
