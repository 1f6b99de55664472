// Package logx 构建 vstitch 使用的 zap logger：控制台写 stderr，文件写 JSON 行并按大小轮转。
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 定义日志配置。
type Config struct {
	Level string // debug|info|warn|error；空串视为 info

	// Console 为控制台输出；nil 表示 os.Stderr（stdout 留给 JSON 报告）。
	Console io.Writer
	// FilePath 为空表示不写文件。
	FilePath string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel 把配置里的级别字符串转换成 zapcore.Level。
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("未知日志级别：%q", s)
	}
}

// New 创建 logger。返回的 closeFn 负责 Sync 并关闭轮转文件，调用方应在退出前调用。
func New(cfg Config) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	consoleCfg := encCfg
	consoleCfg.TimeKey = "" // 控制台只看消息，时间戳留给文件
	consoleCfg.CallerKey = ""
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), level),
	}

	var rotator *lumberjack.Logger
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, err
		}
		rotator = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
		// 文件里总是保留 debug 级别，便于事后排查 ffmpeg 调用。
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	closeFn := func() error {
		_ = logger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// Nop 返回丢弃所有输出的 logger。
func Nop() *zap.Logger { return zap.NewNop() }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
