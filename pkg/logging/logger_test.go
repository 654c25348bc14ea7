package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSetupWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Output: buf})

	logger.Info().Str("endpoint", "getOrders").Msg("request complete")

	output := buf.String()
	if !strings.Contains(output, `"endpoint":"getOrders"`) {
		t.Errorf("Expected structured endpoint field, got %q", output)
	}
	if !strings.Contains(output, "request complete") {
		t.Errorf("Expected message in output, got %q", output)
	}
}

func TestNewLoggerComponentField(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("ratelimit")
	logger.Info().Msg("permit granted")

	output := buf.String()
	if !strings.Contains(output, `"component":"ratelimit"`) {
		t.Errorf("Expected component field, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("sync")

	logger.Debug().Msg("claimed item")
	logger.Info().Msg("progress")
	logger.Warn().Msg("retrying")
	logger.Error().Msg("item failed")

	output := buf.String()

	for _, hidden := range []string{"claimed item", "progress"} {
		if strings.Contains(output, hidden) {
			t.Errorf("Message %q should be filtered out at Warn level", hidden)
		}
	}
	for _, shown := range []string{"retrying", "item failed"} {
		if !strings.Contains(output, shown) {
			t.Errorf("Message %q should be included at Warn level", shown)
		}
	}
}
