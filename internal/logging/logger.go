package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"securewipe/internal/config"
)

// EnterpriseLogger wraps a zap logger. Stdout is reserved for the JSON-lines
// protocol, so console output goes to stderr.
type EnterpriseLogger struct {
	sugar *zap.SugaredLogger
	file  *os.File
}

func NewEnterpriseLogger(cfg *config.Config, verbose bool) (*EnterpriseLogger, error) {
	level := parseLevel(cfg.Logging.Level)

	consoleLevel := zapcore.ErrorLevel
	if verbose {
		consoleLevel = level
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), consoleLevel),
	}

	l := &EnterpriseLogger{}

	if cfg.Logging.File != "" {
		logDir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] cannot create log directory %s: %v\n", logDir, err)
		} else {
			f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] cannot open log file %s: %v\n", cfg.Logging.File, err)
			} else {
				l.file = f
				cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level))
			}
		}
	}

	l.sugar = zap.New(zapcore.NewTee(cores...)).Sugar()
	return l, nil
}

// New wraps an existing zap logger.
func New(logger *zap.Logger) *EnterpriseLogger {
	return &EnterpriseLogger{sugar: logger.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *EnterpriseLogger {
	return New(zap.NewNop())
}

// Log writes one structured entry. Fields are alternating key/value pairs.
func (l *EnterpriseLogger) Log(level, message string, fields ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}

	switch level {
	case "DEBUG":
		l.sugar.Debugw(message, fields...)
	case "WARN":
		l.sugar.Warnw(message, fields...)
	case "ERROR", "FATAL":
		l.sugar.Errorw(message, fields...)
	default:
		l.sugar.Infow(message, fields...)
	}
}

// With returns a child logger carrying the given fields on every entry.
func (l *EnterpriseLogger) With(fields ...interface{}) *EnterpriseLogger {
	if l == nil || l.sugar == nil {
		return l
	}
	return &EnterpriseLogger{sugar: l.sugar.With(fields...)}
}

func (l *EnterpriseLogger) Close() error {
	if l == nil || l.sugar == nil {
		return nil
	}
	// Sync on a console core returns EINVAL for terminals; nothing to act on.
	_ = l.sugar.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
