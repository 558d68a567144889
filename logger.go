package main

import (
	"fmt"
	"log"
	"strings"

	"bmu-service/bmu"
)

var logLevelTags = map[LogLevel]string{
	LogLevelError: "[ERROR] ",
	LogLevelWarn:  "[WARN] ",
	LogLevelInfo:  "[INFO] ",
	LogLevelDebug: "[DEBUG] ",
}

// LeveledLogger wraps a standard logger with log level filtering
type LeveledLogger struct {
	logger   *log.Logger
	logLevel LogLevel
}

// NewLeveledLogger creates a new leveled logger
func NewLeveledLogger(logger *log.Logger, level LogLevel) *LeveledLogger {
	return &LeveledLogger{
		logger:   logger,
		logLevel: level,
	}
}

func (l *LeveledLogger) logf(level LogLevel, format string, v ...interface{}) {
	if l.logLevel >= level {
		l.logger.Printf(logLevelTags[level]+format, v...)
	}
}

func (l *LeveledLogger) Debug(format string, v ...interface{}) {
	l.logf(LogLevelDebug, format, v...)
}

func (l *LeveledLogger) Info(format string, v ...interface{}) {
	l.logf(LogLevelInfo, format, v...)
}

func (l *LeveledLogger) Warn(format string, v ...interface{}) {
	l.logf(LogLevelWarn, format, v...)
}

func (l *LeveledLogger) Error(format string, v ...interface{}) {
	l.logf(LogLevelError, format, v...)
}

// Printf logs at INFO level
func (l *LeveledLogger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

// Fatalf logs a fatal error and exits
func (l *LeveledLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf("[FATAL] "+format, v...)
}

func (l *LeveledLogger) SetLevel(level LogLevel) {
	l.logLevel = level
}

func (l *LeveledLogger) GetLevel() LogLevel {
	return l.logLevel
}

// DebugCAN logs a frame as "CAN RX: ID=0x520 Len=6 Data=[..]" at DEBUG level
func (l *LeveledLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
	if l.logLevel < LogLevelDebug {
		return
	}

	var sb strings.Builder
	for i := 0; i < int(length) && i < len(data) && i < 8; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", data[i])
	}
	l.logger.Printf("[DEBUG] CAN %s: ID=0x%03X Len=%d Data=[%s]", direction, id, length, sb.String())
}

var _ bmu.Logger = (*LeveledLogger)(nil)
