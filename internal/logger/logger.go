package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Rotation limits for the JSON log file
const (
	fileMaxSizeMB  = 20
	fileMaxBackups = 3
	fileMaxAgeDays = 14
)

var (
	log  *zap.Logger
	once sync.Once
)

// Setup configures the process-wide logger. Only the first call counts.
// verbose switches to debug level with the development encoder; a
// non-empty logFile adds a rotated JSON copy of every entry.
func Setup(verbose bool, logFile string) {
	once.Do(func() {
		log = newLogger(verbose, logFile)
	})
}

func newLogger(verbose bool, logFile string) *zap.Logger {
	level := zapcore.InfoLevel
	consoleCfg := zap.NewProductionEncoderConfig()
	if verbose {
		level = zapcore.DebugLevel
		consoleCfg = zap.NewDevelopmentEncoderConfig()
	}
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	// stdout is reserved for command output
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	if logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    fileMaxSizeMB,
			MaxBackups: fileMaxBackups,
			MaxAge:     fileMaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotated),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Get returns the process-wide logger. Without a prior Setup it is an
// info-level console logger.
func Get() *zap.Logger {
	Setup(false, "")
	return log
}

// Named scopes the logger to a component, e.g. "metrics"
func Named(component string) *zap.Logger {
	return Get().Named(component)
}

// Sync flushes buffered entries before exit
func Sync() {
	if l := Get(); l != nil {
		_ = l.Sync()
	}
}
