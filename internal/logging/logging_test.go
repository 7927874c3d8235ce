package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.log")
	logger, closeLog := New(path, "info")
	defer closeLog()

	logger.Info().Str("ssid", "Home").Msg("connected")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"ssid":"Home"`) {
		t.Fatalf("expected structured field in log output, got %q", string(data))
	}
}

func TestNew_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.log")
	logger, closeLog := New(path, "warn")
	defer closeLog()

	logger.Info().Msg("filtered out")
	logger.Warn().Msg("kept")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "filtered out") {
		t.Fatal("info line should have been filtered at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Fatal("warn line missing from log output")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
