package agent

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀，层级用双下划线分隔，如 HYDROMED_AGENT_SERVER__BASE_URL
const EnvPrefix = "HYDROMED_AGENT_"

// Config 设备端 agent 配置
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Hydration HydrationConfig `koanf:"hydration"`
	Outbox    OutboxConfig    `koanf:"outbox"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	BaseURL string `koanf:"base_url"`
	Token   string `koanf:"token"`
	Timeout int    `koanf:"timeout"` // 秒
	// 连续失败多少次后熔断
	BreakerFailures int `koanf:"breaker_failures"`
	BreakerReset    int `koanf:"breaker_reset"` // 秒
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

type HydrationConfig struct {
	IntervalMinutes int `koanf:"interval_minutes"`
	GoalML          int `koanf:"goal_ml"`
	// 恢复补发时无法得知当时的饮水量，使用该占位值
	PlaceholderAmountML int `koanf:"placeholder_amount_ml"`
}

type OutboxConfig struct {
	DrainInterval   int `koanf:"drain_interval"`   // 秒
	InitialInterval int `koanf:"initial_interval"` // 秒
	MaxInterval     int `koanf:"max_interval"`     // 秒
	MaxAttempts     int `koanf:"max_attempts"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"base_url":         "http://localhost:8888",
			"token":            "",
			"timeout":          10,
			"breaker_failures": 5,
			"breaker_reset":    30,
		},
		"store": map[string]interface{}{
			"path": "hydromed-agent.db",
		},
		"hydration": map[string]interface{}{
			"interval_minutes":      60,
			"goal_ml":               2000,
			"placeholder_amount_ml": 250,
		},
		"outbox": map[string]interface{}{
			"drain_interval":   30,
			"initial_interval": 5,
			"max_interval":     600,
			"max_attempts":     20,
		},
		"log": map[string]interface{}{
			"level":  "INFO",
			"format": "text",
		},
	}
}

// LoadConfig 按 默认值 -> yaml 文件 -> 环境变量 的顺序加载，文件不存在时跳过
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Hydration.IntervalMinutes <= 0 {
		return fmt.Errorf("hydration.interval_minutes must be positive")
	}
	if c.Hydration.GoalML <= 0 {
		return fmt.Errorf("hydration.goal_ml must be positive")
	}
	if c.Outbox.DrainInterval <= 0 {
		return fmt.Errorf("outbox.drain_interval must be positive")
	}
	return nil
}

func (c *Config) HydrationInterval() time.Duration {
	return time.Duration(c.Hydration.IntervalMinutes) * time.Minute
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.Timeout) * time.Second
}

func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.Outbox.DrainInterval) * time.Second
}
