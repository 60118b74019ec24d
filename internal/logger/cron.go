package logger

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger 将 robfig/cron 的日志写入 zap
type cronLogger struct{}

// CronLogger 返回 cron.Logger 适配器
func CronLogger() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	GetLogger().Debug("cron: "+msg, zap.Any("kv", keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	GetLogger().Error("cron: "+msg, zap.Error(err), zap.Any("kv", keysAndValues))
}
