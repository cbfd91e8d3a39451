package logger

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capturedLogger(level LogLevel) (*StdLogger, *bytes.Buffer) {
	l := NewStdLogger(level)
	var buf bytes.Buffer
	l.logger = log.New(&buf, "", 0)
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "input %q", tt.input)
	}
}

func TestStdLogger_LevelThreshold(t *testing.T) {
	ctx := context.Background()
	l, buf := capturedLogger(LevelWarn)

	l.Debug(ctx, "debug line")
	l.Info(ctx, "info line")
	assert.Empty(t, buf.String())

	l.Warn(ctx, "warn line")
	l.Error(ctx, errors.New("boom"), "error line")

	out := buf.String()
	assert.Contains(t, out, "[WARN] warn line")
	assert.Contains(t, out, "[ERROR] error line | error: boom")
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
}

func TestStdLogger_FieldRendering(t *testing.T) {
	ctx := context.Background()

	t.Run("fields sorted by key", func(t *testing.T) {
		l, buf := capturedLogger(LevelDebug)

		l.Info(ctx, "Order placed", map[string]interface{}{
			"symbol":  "SOLUSDC",
			"price":   150.5,
			"orderId": "1001",
		})

		assert.Equal(t, "[INFO] Order placed | orderId=1001 price=150.5 symbol=SOLUSDC\n", buf.String())
	})

	t.Run("later maps win on duplicate keys", func(t *testing.T) {
		l, buf := capturedLogger(LevelDebug)

		l.Debug(ctx, "merge",
			map[string]interface{}{"a": 1, "b": 2},
			map[string]interface{}{"b": 3})

		assert.Equal(t, "[DEBUG] merge | a=1 b=3\n", buf.String())
	})

	t.Run("no fields leaves the line bare", func(t *testing.T) {
		l, buf := capturedLogger(LevelDebug)

		l.Info(ctx, "plain")

		assert.Equal(t, "[INFO] plain\n", buf.String())
	})
}
