package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetupFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		isJSON bool
	}{
		{
			name:   "JSON format",
			format: "json",
			isJSON: true,
		},
		{
			name:   "Text format",
			format: "text",
			isJSON: false,
		},
		{
			name:   "Unknown format falls back to text",
			format: "yaml",
			isJSON: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := Setup("info", tt.format)

			_, ok := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.isJSON, ok)
		})
	}
}

func TestSetupLevel(t *testing.T) {
	tests := []struct {
		name          string
		level         string
		expectedLevel logrus.Level
	}{
		{
			name:          "Debug level",
			level:         "debug",
			expectedLevel: logrus.DebugLevel,
		},
		{
			name:          "Info level",
			level:         "info",
			expectedLevel: logrus.InfoLevel,
		},
		{
			name:          "Warn level",
			level:         "warn",
			expectedLevel: logrus.WarnLevel,
		},
		{
			name:          "Error level",
			level:         "error",
			expectedLevel: logrus.ErrorLevel,
		},
		{
			name:          "Invalid level defaults to info",
			level:         "invalid",
			expectedLevel: logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := Setup(tt.level, "text")
			assert.Equal(t, tt.expectedLevel, logger.GetLevel())
		})
	}
}

func TestComponent(t *testing.T) {
	logger := Setup("info", "text")
	entry := Component(logger, "recorder")

	assert.Equal(t, "recorder", entry.Data["component"])
}
