package logging

import (
	"log/slog"
	"testing"
)

func TestLevelFromEnv(t *testing.T) {
	cases := []struct {
		value string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" Error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		t.Setenv("FACTORVAULT_LOG_LEVEL", tc.value)
		if got := levelFromEnv(); got != tc.want {
			t.Fatalf("level for %q: got %v want %v", tc.value, got, tc.want)
		}
	}
}
