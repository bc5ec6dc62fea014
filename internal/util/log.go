// Package util provides logging and traffic statistics shared by the
// producer and consumer roles.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// logf formats and emits one message at level. Output goes to pterm's
// DefaultLogger (stderr unless reconfigured).
func logf(level pterm.LogLevel, prefix, format string, args ...interface{}) {
	logger := pterm.DefaultLogger
	if level < logger.Level {
		return
	}
	msg := prefix + fmt.Sprintf(format, args...)
	switch level {
	case pterm.LogLevelDebug:
		logger.Debug(msg)
	case pterm.LogLevelWarn:
		logger.Warn(msg)
	case pterm.LogLevelError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

func LogDebug(format string, args ...interface{}) { logf(pterm.LogLevelDebug, "", format, args...) }
func LogInfo(format string, args ...interface{})  { logf(pterm.LogLevelInfo, "", format, args...) }

// LogSuccess marks a milestone (channel open, run complete). It logs at info.
func LogSuccess(format string, args ...interface{}) { logf(pterm.LogLevelInfo, "", format, args...) }

func LogWarning(format string, args ...interface{}) { logf(pterm.LogLevelWarn, "", format, args...) }
func LogError(format string, args ...interface{})   { logf(pterm.LogLevelError, "", format, args...) }

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Scope logs with a "[name] " prefix, one per session or engine component.
type Scope struct {
	prefix string
}

// NewScope returns a Scope for name. Session UUIDs are shortened to 8
// characters.
func NewScope(name string) Scope {
	if len(name) == 36 {
		name = name[:8]
	}
	return Scope{prefix: "[" + name + "] "}
}

func (s Scope) Debug(format string, args ...interface{}) {
	logf(pterm.LogLevelDebug, s.prefix, format, args...)
}

func (s Scope) Info(format string, args ...interface{}) {
	logf(pterm.LogLevelInfo, s.prefix, format, args...)
}

func (s Scope) Warning(format string, args ...interface{}) {
	logf(pterm.LogLevelWarn, s.prefix, format, args...)
}

func (s Scope) Error(format string, args ...interface{}) {
	logf(pterm.LogLevelError, s.prefix, format, args...)
}
