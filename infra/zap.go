package infra

import (
	"os"
	"time"

	"community-server/conf"

	"github.com/natefinch/lumberjack/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is shared by every core so a config reload can change it in place.
var LogLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func InitLogger(cfg *conf.LogConfig) *zap.Logger {
	SetLogLevel(cfg.Level)
	encoder := getEncoder()
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), LogLevel)}
	if cfg.Filename != "" {
		if writeSyncer, err := getLogWriter(cfg); err == nil {
			cores = append(cores, zapcore.NewCore(encoder, writeSyncer, LogLevel))
		} else {
			_, _ = os.Stderr.WriteString("log file disabled: " + err.Error() + "\n")
		}
	}
	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(logger)
	return logger
}

// SetLogLevel ignores unknown level names and keeps the current level.
func SetLogLevel(level string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err == nil {
		LogLevel.SetLevel(l)
	}
}

func getEncoder() zapcore.Encoder {
	config := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		CallerKey:      "caller",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	return zapcore.NewConsoleEncoder(config)
}

func getLogWriter(cfg *conf.LogConfig) (zapcore.WriteSyncer, error) {
	roller, err := lumberjack.NewRoller(cfg.Filename, int64(cfg.MaxSize)*1024*1024, &lumberjack.Options{
		MaxBackups: cfg.MaxBackups,
		MaxAge:     time.Duration(cfg.MaxAge) * 24 * time.Hour,
		Compress:   true,
	})
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(roller), nil
}
