package utils

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptorLines(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	li.now = func() time.Time { return fixed }

	n, err := li.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "line=1 time=2024-03-01T10:00:00Z first\n", out.String())

	_, err = li.Write([]byte("ond\r\nthird"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	assert.Equal(t, []string{
		"line=1 time=2024-03-01T10:00:00Z first",
		"line=2 time=2024-03-01T10:00:00Z second",
		"line=3 time=2024-03-01T10:00:00Z third",
	}, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"))
}

func TestMultiLogHandlerLevels(t *testing.T) {
	var info, debug bytes.Buffer
	h := NewMultiLogHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With("component", "test")

	logger.Debug("only debug")
	logger.Info("both")

	assert.NotContains(t, info.String(), "only debug")
	assert.Contains(t, info.String(), "both")
	assert.Contains(t, info.String(), "component=test")
	assert.Contains(t, debug.String(), "only debug")
	assert.Contains(t, debug.String(), "both")
}
