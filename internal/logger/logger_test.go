package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function restoring stdout, text format
// and INFO level.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)
	SetOutput(buf, false)

	return buf, func() {
		SetOutput(os.Stdout, false)
		SetFormat("text")
		SetLevel("INFO")
	}
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "[DEBUG] debug message")
		assert.Contains(t, out, "[INFO] info message")
		assert.Contains(t, out, "[WARN] warn message")
		assert.Contains(t, out, "[ERROR] error message")
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("SetLevelIgnoresInvalidValues", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetLevel("LOUD")

		Debug("hidden")
		Info("shown")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "shown")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"ERROR", slog.LevelError, true},
		{"LOUD", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

// ============================================================================
// Format Tests
// ============================================================================

func TestTextFormatStructuredFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	Info("relay transition", KeyRelay, "archive", KeyState, "IDLE")

	out := buf.String()
	assert.Contains(t, out, "relay=archive")
	assert.Contains(t, out, "state=IDLE")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")

	Info("dispatch", KeyOp, "read", KeyOffset, 4096)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "dispatch", entry["msg"])
	assert.Equal(t, "read", entry[KeyOp])
	assert.Equal(t, float64(4096), entry[KeyOffset])
	assert.Contains(t, entry, "time")
}

func TestInvalidFormatIgnored(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")
	SetFormat("xml")

	Info("still text")
	assert.Contains(t, buf.String(), "[INFO] still text")
}

// ============================================================================
// Context Logging Tests
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")

		lc := &LogContext{
			TraceID:   "abc123",
			RequestID: "req-1",
			Relay:     "archive",
			Op:        "flush",
		}
		InfoCtx(WithContext(context.Background(), lc), "forwarded")

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
		assert.Equal(t, "abc123", entry[KeyTraceID])
		assert.Equal(t, "req-1", entry[KeyRequestID])
		assert.Equal(t, "archive", entry[KeyRelay])
		assert.Equal(t, "flush", entry[KeyOp])
		assert.NotContains(t, entry, KeySpanID)
		assert.NotContains(t, entry, KeyOffset, "flush carries no range")
	})

	t.Run("ContextWithoutLogContextHandled", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		InfoCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
	})

	t.Run("NilContextHandled", func(t *testing.T) {
		assert.Nil(t, FromContext(nil)) //nolint:staticcheck // explicit nil check
	})
}

func TestWithDispatch(t *testing.T) {
	t.Run("KeepsRequestFields", func(t *testing.T) {
		api := WithContext(context.Background(), &LogContext{RequestID: "req-7", ClientIP: "10.0.0.1"})
		ctx := WithDispatch(api, "archive", "write", 4096, 512)

		lc := FromContext(ctx)
		require.NotNil(t, lc)
		assert.Equal(t, "req-7", lc.RequestID)
		assert.Equal(t, "10.0.0.1", lc.ClientIP)
		assert.Equal(t, "archive", lc.Relay)
		assert.Equal(t, "write", lc.Op)
		assert.Equal(t, int64(4096), lc.Offset)
		assert.Equal(t, int64(512), lc.Length)

		assert.Empty(t, FromContext(api).Relay, "parent LogContext must not change")
	})

	t.Run("RangeLogged", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		SetFormat("json")

		ctx := WithDispatch(context.Background(), "archive", "read", 8192, 16)
		DebugCtx(ctx, "Dispatch waiting for wake", KeyWaiters, 1)

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
		assert.Equal(t, "archive", entry[KeyRelay])
		assert.Equal(t, "read", entry[KeyOp])
		assert.Equal(t, float64(8192), entry[KeyOffset])
		assert.Equal(t, float64(16), entry[KeyLength])
		assert.Equal(t, float64(1), entry[KeyWaiters])
	})
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, "relay=r", Relay("r").String())
	assert.Equal(t, "error=boom", Err(errors.New("boom")).String())
	assert.Empty(t, Err(nil).Key)
	assert.Equal(t, 1.5, DurationMs(1500*time.Microsecond).Value.Float64())
}

// ============================================================================
// Concurrency & Init Tests
// ============================================================================

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Info("concurrent", "n", n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, strings.Count(buf.String(), "concurrent"))
}

func TestInit(t *testing.T) {
	t.Run("SetOutput", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		Debug("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("InitWithLogFile", func(t *testing.T) {
		path := t.TempDir() + "/relay.log"
		require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))

		Info("to file")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")

		// Switching away closes the file.
		require.NoError(t, Init(Config{Output: "stdout"}))
		Info("not in file")
		data, err = os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "not in file")
	})

	t.Run("InitWithBadPath", func(t *testing.T) {
		err := Init(Config{Output: t.TempDir() + "/missing/dir/relay.log"})
		assert.Error(t, err)
	})

	t.Run("InitWithEmptyConfig", func(t *testing.T) {
		require.NoError(t, Init(Config{}))
	})
}

func BenchmarkLogDisabled(b *testing.B) {
	_, cleanup := captureOutput()
	defer cleanup()
	SetLevel("ERROR")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Debug("test message", KeyRelay, "archive")
	}
}

func BenchmarkLogCtx(b *testing.B) {
	_, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")
	SetFormat("json")

	ctx := WithDispatch(context.Background(), "archive", "read", 0, 4096)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InfoCtx(ctx, "test message", "count", i)
	}
}

// ============================================================================
// Text Handler Tests
// ============================================================================

func TestColorTextHandler(t *testing.T) {
	t.Run("GroupsAreFlattened", func(t *testing.T) {
		buf := new(bytes.Buffer)
		l := slog.New(NewColorTextHandler(buf, nil, false))

		l.WithGroup("device").Info("attached", "name", "nbd0")
		assert.Contains(t, buf.String(), "device.name=nbd0")
	})

	t.Run("WithAttrsPrerendered", func(t *testing.T) {
		buf := new(bytes.Buffer)
		l := slog.New(NewColorTextHandler(buf, nil, false)).With(KeyRelay, "archive")

		l.Info("one")
		l.Info("two")
		assert.Equal(t, 2, strings.Count(buf.String(), "relay=archive"))
	})

	t.Run("ValuesWithSpacesQuoted", func(t *testing.T) {
		buf := new(bytes.Buffer)
		l := slog.New(NewColorTextHandler(buf, nil, false))

		l.Info("failed", KeyError, "device not found")
		assert.Contains(t, buf.String(), `error="device not found"`)
	})

	t.Run("ColorWrapsLevel", func(t *testing.T) {
		buf := new(bytes.Buffer)
		l := slog.New(NewColorTextHandler(buf, nil, true))

		l.Warn("careful")
		assert.Contains(t, buf.String(), colorYellow+"WARN"+colorReset)
	})
}
