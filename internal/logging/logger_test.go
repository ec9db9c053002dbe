package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range []string{"", "console", "JSON"} {
		logger, err := NewLogger("debug", format)
		require.NoError(t, err, format)
		require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	logger, err := NewLogger("", "json")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	_, err := NewLogger("loud", "json")
	require.Error(t, err)
	_, err = NewLogger("info", "xml")
	require.Error(t, err)
}
