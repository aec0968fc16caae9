package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fisio.log")
	logger, closer := New(Options{Level: "info", File: path, Service: "test"})
	logger.Info().Str("uid", "u1").Msg("hola")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"uid":"u1"`) || !strings.Contains(string(data), `"service":"test"`) {
		t.Errorf("unexpected log contents: %s", data)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	logger, closer := New(Options{Level: "error"})
	defer closer.Close()
	if logger.GetLevel() != zerolog.ErrorLevel {
		t.Errorf("expected error level, got %v", logger.GetLevel())
	}
}
