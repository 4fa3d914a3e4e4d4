package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestInfo_FormatsKeyValues(t *testing.T) {
	buf := captureOutput(t, LevelInfo)

	Info("sample taken", "source", "rtc", "year", 2024, "dangling")

	line := buf.String()
	assert.Contains(t, line, "[INFO] sample taken source=rtc year=2024")
	assert.NotContains(t, line, "dangling")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestError_PrependsErr(t *testing.T) {
	buf := captureOutput(t, LevelInfo)

	Error("read failed", errors.New("bus busy"), "addr", "0x68")

	assert.Contains(t, buf.String(), "[ERROR] read failed err=bus busy addr=0x68")
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelError)

	Debug("hidden")
	Info("hidden too")
	Error("shown", nil)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[ERROR] shown err=<nil>")

	buf.Reset()
	SetLevel(LevelDebug)
	Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"":        LevelInfo,
		"info":    LevelInfo,
		" Debug ": LevelDebug,
		"ERROR":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}
