// Package logger provides the process-wide zap logger, initialised once
// from the CLI driver and retrieved everywhere else via Get.
package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once sync.Once
	log  *zap.Logger
)

// Init sets up the console-only logger. Safe to call more than once;
// only the first call takes effect.
func Init(verbose bool) {
	once.Do(func() {
		log = build(verbose, "")
	})
}

// InitWithFile sets up a logger that writes to both console and a
// lumberjack-rotated file.
func InitWithFile(verbose bool, logFile string) {
	once.Do(func() {
		log = build(verbose, logFile)
	})
}

func build(verbose bool, logFile string) *zap.Logger {
	level := zapcore.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	if verbose {
		level = zapcore.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		level,
	)

	cores := []zapcore.Core{consoleCore}
	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(rotator),
			level,
		)
		cores = append(cores, fileCore)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// Get returns the process logger, lazily falling back to a quiet console
// logger if Init/InitWithFile was never called (e.g. in tests).
func Get() *zap.Logger {
	once.Do(func() {
		log = build(false, "")
	})
	return log
}

// Sync flushes any buffered log entries; call from the CLI driver's
// deferred shutdown path.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
