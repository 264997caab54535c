package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/scrypster/agentpulse/internal/logging"
)

func TestNew_Levels(t *testing.T) {
	l, err := logging.New("warn", "json", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = logging.New("error", "console", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel), "verbose forces debug")
}

func TestNew_RejectsUnknownValues(t *testing.T) {
	_, err := logging.New("loud", "json", false)
	assert.Error(t, err)

	_, err = logging.New("info", "xml", false)
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, logging.OrNop(nil))
}
