package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)
	l.Debug("hidden")
	l.Info("also hidden")
	require.Empty(t, buf.String())

	l.Warn("visible", "id", 7)
	require.Contains(t, buf.String(), "[WARN]")
	require.Contains(t, buf.String(), "visible")
	require.Contains(t, buf.String(), "id=7")
}

func TestErrorAlwaysPasses(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelError)
	l.Error("boom", "witem", 42)
	lines := strings.TrimSpace(buf.String())
	require.Contains(t, lines, "[ERROR]")
	require.Contains(t, lines, "boom")
	require.Contains(t, lines, "witem=42")
}

func TestDefaultLoggerSwap(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	defer SetDefault(prev)

	SetDefault(New(&buf, LevelDebug))
	Info("hello")
	require.Contains(t, buf.String(), "hello")
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	require.NotPanics(t, func() { l.Info("nothing") })
}
