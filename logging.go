package bookbuddy

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap.SugaredLogger to the module Logger contract.
type ZapLogger struct {
	sl *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a production or development zap logger depending on
// the environment and wraps it for the module.
func NewZapLogger(cfg *Config) (*ZapLogger, error) {
	var zcfg zap.Config
	if cfg != nil && cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg != nil && cfg.LogLevel != "" {
		if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
			zcfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{sl: logger.Sugar()}, nil
}

// WrapZap adapts an existing zap logger, useful in tests.
func WrapZap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sl: logger.Sugar()}
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.sl.Sync()
}

func (l *ZapLogger) Debug(format string, args ...any) {
	l.sl.Debugf(format, args...)
}

func (l *ZapLogger) Info(format string, args ...any) {
	l.sl.Infof(format, args...)
}

func (l *ZapLogger) Warn(format string, args ...any) {
	l.sl.Warnf(format, args...)
}

func (l *ZapLogger) Error(format string, args ...any) {
	l.sl.Errorf(format, args...)
}
