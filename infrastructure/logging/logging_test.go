package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// testLogger creates a logger that writes to a buffer for testing
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := bolt.NewJSONHandler(buf)
	logger := bolt.New(handler).SetLevel(bolt.TRACE)
	return logger, buf
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()

	if config.Level != "info" {
		t.Errorf("Level = %s, want info", config.Level)
	}
	if config.Format != "console" {
		t.Errorf("Format = %s, want console", config.Format)
	}
	if config.Output != os.Stderr {
		t.Errorf("Output = %v, want os.Stderr", config.Output)
	}
}

func TestProductionConfig(t *testing.T) {
	t.Parallel()

	config := ProductionConfig()

	if config.Format != "json" {
		t.Errorf("Format = %s, want json", config.Format)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"warning", bolt.WARN},
		{"WARN", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Field
		want  string
	}{
		{"key", Key("user:1:profile"), `"key":"user:1:profile"`},
		{"prefix", Prefix("user:1:"), `"prefix":"user:1:"`},
		{"count", Count(3), `"count":3`},
		{"backend", Backend("redis"), `"backend":"redis"`},
		{"strategy", Strategy("fixed_window"), `"strategy":"fixed_window"`},
		{"action", Action("signup"), `"action":"signup"`},
		{"caller", Caller("10.0.0.1"), `"caller":"10.0.0.1"`},
		{"remaining", Remaining(4), `"remaining":4`},
		{"duration", Duration(100 * time.Millisecond), `"duration_ms":100`},
		{"retry after", RetryAfter(2 * time.Second), `"retry_after_ms":2000`},
		{"cached", Cached(true), `"cached":true`},
		{"component", Component("cache"), `"component":"cache"`},
		{"operation", Operation("delete_prefix"), `"operation":"delete_prefix"`},
		{"str", Str("custom", "value"), `"custom":"value"`},
		{"int", Int("points", 5), `"points":5`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := testLogger()
			tt.field(logger.Info()).Msg("test")

			if !bytes.Contains(buf.Bytes(), []byte(tt.want)) {
				t.Errorf("expected %s in output: %s", tt.want, buf.String())
			}
		})
	}
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	t.Run("with error", func(t *testing.T) {
		t.Parallel()

		logger, buf := testLogger()
		ErrorField(errors.New("test error"))(logger.Info()).Msg("test")

		if !bytes.Contains(buf.Bytes(), []byte(`"error":"test error"`)) {
			t.Errorf("expected error field in output: %s", buf.String())
		}
	})

	t.Run("with nil error", func(t *testing.T) {
		t.Parallel()

		logger, buf := testLogger()
		ErrorField(nil)(logger.Info()).Msg("test")

		if bytes.Contains(buf.Bytes(), []byte(`"error"`)) {
			t.Errorf("unexpected error field in output: %s", buf.String())
		}
	})
}

func TestLogEvent(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()

	t.Run("Add chains fields", func(t *testing.T) {
		buf.Reset()
		NewEvent(logger.Info()).Add(Key("k")).Add(Backend("memory")).Msg("test")

		if !bytes.Contains(buf.Bytes(), []byte(`"key":"k"`)) {
			t.Errorf("expected key field in output: %s", buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"backend":"memory"`)) {
			t.Errorf("expected backend field in output: %s", buf.String())
		}
	})

	t.Run("Send without message", func(t *testing.T) {
		buf.Reset()
		NewEvent(logger.Info()).Add(Key("k2")).Send()

		if !bytes.Contains(buf.Bytes(), []byte(`"key":"k2"`)) {
			t.Errorf("expected key field in output: %s", buf.String())
		}
	})
}

func TestInitAndGet(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{Level: "debug", Format: "json", Output: buf})
	t.Cleanup(func() { Init(Config{Level: "error", Format: "json", Output: &bytes.Buffer{}}) })

	if Get() == nil {
		t.Fatal("Get() returned nil")
	}

	Debug().Add(Component("test")).Msg("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"component":"test"`)) {
		t.Errorf("expected default logger to write to configured output: %s", buf.String())
	}

	SetLevel("error")
	buf.Reset()
	Info().Msg("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info should be suppressed at error level: %s", buf.String())
	}
}
