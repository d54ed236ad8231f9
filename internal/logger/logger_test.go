package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "banter.log")

	l, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	l.Info().Str("component", "test").Msg("hello")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "banter.log")

	l, err := New(Config{Level: "nonsense", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	l.Debug().Msg("should be suppressed")
	l.Info().Msg("should appear")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "should appear")
}

func TestNew_RedactionScrubsTokens(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "banter.log")

	l, err := New(Config{Level: "info", File: logFile, Redaction: true})
	require.NoError(t, err)
	defer l.Close()

	token := "1234567890:" + strings.Repeat("A", 35)
	l.Error().Str("url", "https://api.telegram.org/bot"+token+"/sendMessage").Msg("send failed")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), token)
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestRedactor_Patterns(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name  string
		input string
	}{
		{"telegram token", "token 1234567890:" + strings.Repeat("x", 35) + " leaked"},
		{"openai key", "key sk-" + strings.Repeat("a", 30) + " leaked"},
		{"anthropic key", "key sk-ant-" + strings.Repeat("a", 30) + " leaked"},
		{"bearer token", "Authorization: Bearer abc.def-ghi leaked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.Contains(t, out, "[REDACTED]")
			assert.Contains(t, out, "leaked")
		})
	}
}
