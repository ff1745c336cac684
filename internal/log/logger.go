// Package log provides a global logger with configurable logging level. Output is written to
// stderr through zap: a console encoder when stderr is a terminal, JSON otherwise.
package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anamolies that are not expected to occur during normal use.
	LevelWarning              // Logs anamolies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

var (
	globalLogLevel Level = LevelWarning
	logMutex       sync.Mutex
	sugar          *zap.SugaredLogger
)

var zapLevels = map[Level]zapcore.Level{
	LevelDebug:   zapcore.DebugLevel,
	LevelInfo:    zapcore.InfoLevel,
	LevelWarning: zapcore.WarnLevel,
	LevelError:   zapcore.ErrorLevel,
}

// ParseLevel converts a level name (none, error, warn, info, debug) into a Level.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "none", "off":
		return LevelNone, nil
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelNone, fmt.Errorf("unknown log level '%s'", name)
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// SetJSON forces the JSON (json=true) or console (json=false) encoder.
func SetJSON(json bool) {
	logMutex.Lock()
	defer logMutex.Unlock()
	sugar = newLogger(json)
}

// Sync flushes buffered log entries.
func Sync() {
	logMutex.Lock()
	s := sugar
	logMutex.Unlock()
	if s != nil {
		_ = s.Sync()
	}
}

func newLogger(json bool) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}
	// Filtering happens in log() so the zap core accepts everything.
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

func logger() (Level, *zap.SugaredLogger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if sugar == nil {
		sugar = newLogger(!term.IsTerminal(int(os.Stderr.Fd())))
	}
	return globalLogLevel, sugar
}

func log(level Level, format string, a ...interface{}) {
	current, s := logger()
	if level > current {
		return
	}
	s.Logf(zapLevels[level], format, a...)
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
