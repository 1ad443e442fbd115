package logger_test

import (
	"testing"

	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/stretchr/testify/assert"
)

func TestConfig_LevelForNamespace(t *testing.T) {
	t.Parallel()

	config := logger.NewConfig(logger.ConfigMap{
		"":                       logger.LevelWarn,
		"main":                   logger.LevelInfo,
		"main:signaling":         logger.LevelDebug,
		"*:producer":             logger.LevelTrace,
		"**:pion:**":             logger.LevelError,
		"main:**:rtcp":           logger.LevelDisabled,
		"send_transport:*:stats": logger.LevelDebug,
	})

	type testCase struct {
		namespace string
		wantLevel logger.Level
	}

	testCases := []testCase{
		{"", logger.LevelWarn},
		{"other", logger.LevelWarn},
		{"main", logger.LevelInfo},
		{"main:signaling", logger.LevelDebug},
		{"main:signaling:client", logger.LevelWarn},
		{"main:producer", logger.LevelTrace},
		{"send_transport:producer", logger.LevelTrace},
		{"send_transport:a:producer", logger.LevelWarn},
		{"pion", logger.LevelError},
		{"pion:ice", logger.LevelError},
		{"main:pion:dtls:handshake", logger.LevelError},
		{"main:rtcp", logger.LevelDisabled},
		{"main:send_transport:video:rtcp", logger.LevelDisabled},
		{"send_transport:video:stats", logger.LevelDebug},
		{"send_transport:video:audio:stats", logger.LevelWarn},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.wantLevel, config.LevelForNamespace(tc.namespace), "namespace: %q", tc.namespace)
	}
}

func TestNewConfigFromString(t *testing.T) {
	t.Parallel()

	assert.Nil(t, logger.NewConfigFromString(""))

	config := logger.NewConfigFromString("producer,signaling:debug,:error")

	assert.Equal(t, logger.LevelError, config.LevelForNamespace(""))
	assert.Equal(t, logger.LevelInfo, config.LevelForNamespace("producer"))
	assert.Equal(t, logger.LevelDebug, config.LevelForNamespace("signaling"))
	assert.Equal(t, logger.LevelError, config.LevelForNamespace("cli"))
}

func TestNewConfig_Nil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, logger.NewConfig(nil))
}
