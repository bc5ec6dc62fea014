package util

import (
	"github.com/pion/logging"
)

// PionLoggerFactory returns a pion LoggerFactory that routes the transport
// engine's logs through the pterm logger. Trace output is discarded and Info
// is demoted to debug; pion is chatty at that level.
func PionLoggerFactory() logging.LoggerFactory {
	return pionFactory{}
}

type pionFactory struct{}

func (pionFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{NewScope(scope)}
}

type pionLogger struct {
	log Scope
}

var _ logging.LeveledLogger = pionLogger{}

func (pionLogger) Trace(string)                  {}
func (pionLogger) Tracef(string, ...interface{}) {}

func (l pionLogger) Debug(msg string)                          { l.log.Debug("%s", msg) }
func (l pionLogger) Debugf(format string, args ...interface{}) { l.log.Debug(format, args...) }
func (l pionLogger) Info(msg string)                           { l.log.Debug("%s", msg) }
func (l pionLogger) Infof(format string, args ...interface{})  { l.log.Debug(format, args...) }
func (l pionLogger) Warn(msg string)                           { l.log.Warning("%s", msg) }
func (l pionLogger) Warnf(format string, args ...interface{})  { l.log.Warning(format, args...) }
func (l pionLogger) Error(msg string)                          { l.log.Error("%s", msg) }
func (l pionLogger) Errorf(format string, args ...interface{}) { l.log.Error(format, args...) }
