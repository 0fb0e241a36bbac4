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
		t.Errorf("Level = %s, want %s", cfg.Level, LevelInfo)
	}
	if cfg.Pretty {
		t.Error("Pretty = true, want false")
	}
	if cfg.Output == nil {
		t.Error("Output = nil, want os.Stderr")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetup_ComponentAndFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := NewLogger("dispatcher")
	logger.Info().Msg("queued call")
	logger.Warn().Str("call_id", "abc").Msg("retry scheduled")

	out := buf.String()
	if strings.Contains(out, "queued call") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "retry scheduled") {
		t.Errorf("output missing warn message: %q", out)
	}
	if !strings.Contains(out, `"component":"dispatcher"`) {
		t.Errorf("output missing component field: %q", out)
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger := NewLogger("proxy")
	logger.Info().Msg("listening")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("pretty output looks like JSON: %q", out)
	}
	if !strings.Contains(out, "listening") {
		t.Errorf("output missing message: %q", out)
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	// Must not panic and must not write anywhere.
	logger.Error().Msg("discarded")
}
