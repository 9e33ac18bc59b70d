package db

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"
)

// Logger routes gorm output into zap under the [GORM] name.
type Logger struct {
	log                       *zap.Logger
	LogLevel                  gormlog.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

func NewGormLog(zapLogger *zap.Logger) Logger {
	return Logger{
		log:                       zapLogger.Named("\u001B[33m[GORM]\u001B[0m").WithOptions(zap.AddCallerSkip(3)),
		LogLevel:                  gormlog.Warn,
		SlowThreshold:             100 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
	}
}

func (l Logger) LogMode(level gormlog.LogLevel) gormlog.Interface {
	l.LogLevel = level
	return l
}

func (l Logger) Info(_ context.Context, str string, args ...interface{}) {
	if l.LogLevel >= gormlog.Info {
		l.log.Sugar().Debugf(str, args...)
	}
}

func (l Logger) Warn(_ context.Context, str string, args ...interface{}) {
	if l.LogLevel >= gormlog.Warn {
		l.log.Sugar().Warnf(str, args...)
	}
}

func (l Logger) Error(_ context.Context, str string, args ...interface{}) {
	if l.LogLevel >= gormlog.Error {
		l.log.Sugar().Errorf(str, args...)
	}
}

func (l Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlog.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.LogLevel >= gormlog.Error && !l.ignored(err):
		sql, rows := fc()
		l.log.Error("query failed", zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= gormlog.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.LogLevel >= gormlog.Info:
		sql, rows := fc()
		l.log.Debug("query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}

// duplicate keys are reported to callers as ErrUsernameTaken, not logged
func (l Logger) ignored(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return l.IgnoreRecordNotFoundError && errors.Is(err, gorm.ErrRecordNotFound)
}
