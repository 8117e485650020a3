package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name       string
		appEnv     string
		debugLevel bool
	}{
		{"production", "production", false},
		{"production mixed case", "Production", false},
		{"development", "development", true},
		{"empty env", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.appEnv)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, tt.debugLevel, logger.Desugar().Core().Enabled(zapcore.DebugLevel))
		})
	}
}
