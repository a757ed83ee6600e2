package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// gormZapLogger 把 GORM 的日志输出桥接到 zap
// record not found 不算错误，由业务层自行转换，这里不刷错误日志。
type gormZapLogger struct {
	base          *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger 创建 GORM 日志适配器
func NewGormLogger(base *zap.Logger, level gormLogger.LogLevel, slowThreshold time.Duration) gormLogger.Interface {
	return &gormZapLogger{
		base:          base,
		level:         level,
		slowThreshold: slowThreshold,
	}
}

func (l *gormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Info {
		l.base.Sugar().Infof(msg, data...)
	}
}

func (l *gormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.base.Sugar().Warnf(msg, data...)
	}
}

func (l *gormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Error {
		l.base.Sugar().Errorf(msg, data...)
	}
}

// Trace 记录单条 SQL 的耗时与行数，超过慢查询阈值升级为 Warn
func (l *gormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.base.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.base.Warn("SQL 慢查询", fields...)
	case l.level >= gormLogger.Info:
		l.base.Debug("SQL 执行", fields...)
	}
}
