package observability

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"INFO", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		logger := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	})

	t.Run("console format", func(t *testing.T) {
		logger := NewLogger(LoggingConfig{Level: "info", Format: "console", Output: "stderr"})
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("defaults applied", func(t *testing.T) {
		logger := NewLogger(DefaultLoggingConfig())
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestContextHelpers(t *testing.T) {
	base := NewLogger(DefaultLoggingConfig())
	personID := uuid.New()

	// The With() helpers return derived loggers; verify they do not panic and
	// keep the original level.
	l := WithPersonContext(base, personID, "Jane Smith")
	assert.Equal(t, base.GetLevel(), l.GetLevel())

	l = WithMergeContext(base, personID, 3)
	assert.Equal(t, base.GetLevel(), l.GetLevel())

	l = WithLinkContext(base, "event-42", personID)
	assert.Equal(t, base.GetLevel(), l.GetLevel())
}
