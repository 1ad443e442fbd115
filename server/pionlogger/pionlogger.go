// Package pionlogger routes pion's subsystem logs through logger.Logger
// under the "pion" namespace.
package pionlogger

import (
	"fmt"

	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/pion/logging"
)

const namespace = "pion"

// Factory implements logging.LoggerFactory. It is set on the
// webrtc.SettingEngine used by send transports.
type Factory struct {
	log logger.Logger
}

var _ logging.LoggerFactory = &Factory{}

func NewFactory(log logger.Logger) *Factory {
	return &Factory{
		log: log.WithNamespaceAppended(namespace),
	}
}

func (f *Factory) NewLogger(subsystem string) logging.LeveledLogger {
	return &leveledLogger{
		log: f.log.WithNamespaceAppended(subsystem),
	}
}

type leveledLogger struct {
	log logger.Logger
}

var _ logging.LeveledLogger = &leveledLogger{}

// logf skips formatting when the level is disabled since pion logs every
// packet at trace level.
func (l *leveledLogger) logf(level logger.Level, format string, args []interface{}) {
	if !l.log.IsLevelEnabled(level) {
		return
	}

	l.logMsg(level, fmt.Sprintf(format, args...))
}

func (l *leveledLogger) logMsg(level logger.Level, msg string) {
	switch level {
	case logger.LevelTrace:
		_, _ = l.log.Trace(msg, nil)
	case logger.LevelDebug:
		_, _ = l.log.Debug(msg, nil)
	case logger.LevelInfo:
		_, _ = l.log.Info(msg, nil)
	case logger.LevelWarn:
		_, _ = l.log.Warn(msg, nil)
	default:
		_, _ = l.log.Error(msg, nil, nil)
	}
}

func (l *leveledLogger) Trace(msg string) { l.logMsg(logger.LevelTrace, msg) }
func (l *leveledLogger) Debug(msg string) { l.logMsg(logger.LevelDebug, msg) }
func (l *leveledLogger) Info(msg string)  { l.logMsg(logger.LevelInfo, msg) }
func (l *leveledLogger) Warn(msg string)  { l.logMsg(logger.LevelWarn, msg) }
func (l *leveledLogger) Error(msg string) { l.logMsg(logger.LevelError, msg) }

func (l *leveledLogger) Tracef(format string, args ...interface{}) {
	l.logf(logger.LevelTrace, format, args)
}

func (l *leveledLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.LevelDebug, format, args)
}

func (l *leveledLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.LevelInfo, format, args)
}

func (l *leveledLogger) Warnf(format string, args ...interface{}) {
	l.logf(logger.LevelWarn, format, args)
}

func (l *leveledLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.LevelError, format, args)
}
