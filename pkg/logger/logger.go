package logger

import (
	"io"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"HydroMed/config"
)

var (
	// Logger 在 Init 之前是 Nop，测试和未初始化的进程不会 panic
	Logger   = zap.NewNop()
	logClose io.Closer
)

// Options 日志构建参数，服务端取自 config.Cfg，agent 取自自己的配置文件
type Options struct {
	Level      string
	Format     string // json, text
	OutputPath string
	Colored    bool
}

// Init 按 config.Cfg 构建全局 zap 日志，同时接管 hertz 的 hlog
func Init() {
	InitWith(Options{
		Level:      config.Cfg.LoggerLevel,
		Format:     config.Cfg.LoggerFormat,
		OutputPath: config.Cfg.LoggerOutputPath,
		Colored:    config.Cfg.IsDevelopment(),
	})

	Logger.Info("Logger initialized successfully",
		zap.String("level", strings.ToUpper(config.Cfg.LoggerLevel)),
		zap.String("format", config.Cfg.LoggerFormat),
		zap.String("environment", config.Cfg.Environment),
	)
}

// InitWith 使用显式参数初始化全局日志
func InitWith(o Options) {
	coreLevel := zap.NewAtomicLevel()
	coreLevel.SetLevel(parseZapLevel(o.Level))

	opts := []hertzzap.Option{
		hertzzap.WithCoreEnc(buildEncoder(o)),
		hertzzap.WithCoreWs(buildWriteSyncer(o.OutputPath)),
		hertzzap.WithCoreLevel(coreLevel),
		hertzzap.WithZapOptions(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
	}

	hzLogger := hertzzap.NewLogger(opts...)
	hlog.SetLogger(hzLogger)
	hlog.SetLevel(toHlogLevel(coreLevel.Level()))

	Logger = hzLogger.Logger()
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}

	if logClose != nil {
		_ = logClose.Close()
	}
}

func buildEncoder(o Options) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if strings.EqualFold(o.Format, "text") {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if o.Colored {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func buildWriteSyncer(path string) zapcore.WriteSyncer {
	if path == "" || strings.EqualFold(path, "stdout") {
		return zapcore.AddSync(os.Stdout)
	}
	if strings.EqualFold(path, "stderr") {
		return zapcore.AddSync(os.Stderr)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		panic("failed to open log file: " + err.Error())
	}
	logClose = file

	return zapcore.AddSync(file)
}

func parseZapLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func toHlogLevel(level zapcore.Level) hlog.Level {
	switch level {
	case zapcore.DebugLevel:
		return hlog.LevelDebug
	case zapcore.InfoLevel:
		return hlog.LevelInfo
	case zapcore.WarnLevel:
		return hlog.LevelWarn
	case zapcore.ErrorLevel:
		return hlog.LevelError
	default:
		return hlog.LevelInfo
	}
}
