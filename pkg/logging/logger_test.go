package logging

import (
	"bufio"
	"bytes"
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lines decodes the JSON log lines written to buf.
func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line), sc.Text())
		out = append(out, line)
	}
	return out
}

func messages(entries []map[string]any) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		msg, _ := e[zerolog.MessageFieldName].(string)
		out = append(out, msg)
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.False(t, cfg.Pretty)
	assert.Equal(t, "bizcache", cfg.Service)
	assert.NotNil(t, cfg.Output)
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{LevelDebug, []string{"hit", "connected", "degraded", "failed"}},
		{LevelInfo, []string{"connected", "degraded", "failed"}},
		{LevelWarn, []string{"degraded", "failed"}},
		{LevelError, []string{"failed"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			Setup(Config{Level: tt.level, Output: buf})

			logger := NewLogger(ComponentCache)
			logger.Debug().Msg("hit")
			logger.Info().Msg("connected")
			logger.Warn().Msg("degraded")
			logger.Error().Msg("failed")

			assert.Equal(t, tt.want, messages(lines(t, buf)))
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"trace", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger_Fields(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf, Service: "bizcache-test"})

	logger := NewLogger(ComponentInvalidation)
	logger.Info().Str("pattern", "invoices:*").Msg("Cache invalidated")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "invalidation", entries[0]["component"])
	assert.Equal(t, "bizcache-test", entries[0]["service"])
	assert.Equal(t, "invoices:*", entries[0]["pattern"])
	assert.Contains(t, entries[0], zerolog.TimestampFieldName)
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger := NewLogger(ComponentServer)
	logger.Info().Msg("Starting cache server")

	out := buf.String()
	assert.Contains(t, out, "Starting cache server")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "pretty output is not JSON")
}

func TestFromContext(t *testing.T) {
	global := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: global})

	FromContext(context.Background()).Info().Msg("outside request")
	assert.Equal(t, []string{"outside request"}, messages(lines(t, global)))

	scoped := &bytes.Buffer{}
	l := zerolog.New(scoped).With().Str("request_id", "r-1").Logger()
	FromContext(l.WithContext(context.Background())).Info().Msg("inside request")

	entries := lines(t, scoped)
	require.Len(t, entries, 1)
	assert.Equal(t, "r-1", entries[0]["request_id"])
	assert.Empty(t, global.String(), "request logs stay on the request logger")
}
