package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/h2framein/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line %q", line)
		out = append(out, m)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func TestLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LogLevelInfo, nil)

	l.Debug("hidden")
	l.Info("decoder ready", LogFields{"max_frame_size": 16384})
	l.Warn("slow peer")
	l.Error("decode failed", LogFields{"code": "FRAME_SIZE_ERROR"}, LogFields{"stream": 0})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)

	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "decoder ready", entries[0]["msg"])
	assert.EqualValues(t, 16384, entries[0]["max_frame_size"])
	assert.Contains(t, entries[0], "ts")

	assert.Equal(t, "WARNING", entries[1]["level"])

	assert.Equal(t, "ERROR", entries[2]["level"])
	assert.Equal(t, "FRAME_SIZE_ERROR", entries[2]["code"])
	assert.EqualValues(t, 0, entries[2]["stream"])
}

func TestLogger_ErrorLevelFiltersWarnings(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LogLevelError, nil)
	l.Info("no")
	l.Warn("no")
	l.Error("yes")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "yes", entries[0]["msg"])
}

func TestLogger_FrameLog(t *testing.T) {
	var diag, frames bytes.Buffer
	l := New(&diag, config.LogLevelError, &frames)
	require.True(t, l.FrameLogEnabled())

	l.Frame(LogFields{"type": "DATA", "stream_id": 1, "length": 5})

	entries := decodeLines(t, &frames)
	require.Len(t, entries, 1)
	assert.Equal(t, "DATA", entries[0]["type"])
	assert.NotContains(t, entries[0], "level")
	assert.Empty(t, diag.String())

	noFrames := New(&diag, config.LogLevelInfo, nil)
	assert.False(t, noFrames.FrameLogEnabled())
	noFrames.Frame(LogFields{"type": "DATA"})
}

func TestLogger_With(t *testing.T) {
	var diag, frames bytes.Buffer
	l := New(&diag, config.LogLevelDebug, &frames).With(LogFields{"remote_addr": "127.0.0.1:5555"})

	l.Debug("connection accepted")
	l.Frame(LogFields{"type": "PING"})

	assert.Equal(t, "127.0.0.1:5555", decodeLines(t, &diag)[0]["remote_addr"])
	assert.Equal(t, "127.0.0.1:5555", decodeLines(t, &frames)[0]["remote_addr"])
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("dropped")
	l.Frame(LogFields{"type": "DATA"})
	assert.False(t, l.FrameLogEnabled())
	assert.NoError(t, l.ReopenLogFiles())
}

func TestNewLogger_NilConfig(t *testing.T) {
	_, err := NewLogger(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging configuration cannot be nil")
}

func TestNewLogger_FileTargetsAndReopen(t *testing.T) {
	dir := t.TempDir()
	errPath := filepath.Join(dir, "error.log")
	framePath := filepath.Join(dir, "frames.log")

	l, err := NewLogger(&config.LoggingConfig{
		LogLevel: config.LogLevelInfo,
		ErrorLog: &config.ErrorLogConfig{Target: errPath, Format: config.LogFormatJSON},
		FrameLog: &config.FrameLogConfig{Enabled: boolPtr(true), Target: framePath},
	})
	require.NoError(t, err)
	defer l.CloseLogFiles()

	l.Info("before rotate")
	l.Frame(LogFields{"type": "SETTINGS"})

	rotated := errPath + ".1"
	require.NoError(t, os.Rename(errPath, rotated))
	require.NoError(t, l.ReopenLogFiles())

	l.Info("after rotate")

	old, err := os.ReadFile(rotated)
	require.NoError(t, err)
	assert.Contains(t, string(old), "before rotate")
	assert.NotContains(t, string(old), "after rotate")

	cur, err := os.ReadFile(errPath)
	require.NoError(t, err)
	assert.Contains(t, string(cur), "after rotate")

	fr, err := os.ReadFile(framePath)
	require.NoError(t, err)
	assert.Contains(t, string(fr), `"type":"SETTINGS"`)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	l, err := NewLogger(&config.LoggingConfig{
		LogLevel: config.LogLevelDebug,
		ErrorLog: &config.ErrorLogConfig{Target: path, Format: config.LogFormatConsole},
	})
	require.NoError(t, err)
	l.Debug("human readable", LogFields{"stream": 3})
	l.CloseLogFiles()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "human readable")
	assert.Contains(t, string(data), "stream=3")
	assert.False(t, json.Valid(bytes.TrimSpace(data)), "console output should not be JSON")
}

func TestNewLogger_UnopenableFile(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{
		LogLevel: config.LogLevelInfo,
		ErrorLog: &config.ErrorLogConfig{Target: filepath.Join(t.TempDir(), "missing", "dir", "err.log")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}
