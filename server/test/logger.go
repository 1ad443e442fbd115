// Package test contains helpers shared by tests of other packages.
package test

import (
	"github.com/peer-calls/mediaproducer/server/logformatter"
	"github.com/peer-calls/mediaproducer/server/logger"
)

// LogEnvKey configures test loggers, for example
// MEDIAPRODUCER_LOG=**:producer:trace go test ./...
const LogEnvKey = "MEDIAPRODUCER_LOG"

func NewLogger() logger.Logger {
	return logger.NewFromEnv(LogEnvKey).WithFormatter(logformatter.New(logformatter.Params{}))
}
