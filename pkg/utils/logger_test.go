package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode enables debug level", func(t *testing.T) {
		logger, err := NewLogger(true)
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		if ce := logger.Check(zapcore.DebugLevel, "debug check"); ce == nil {
			t.Error("debug logger should accept debug entries")
		}
		_ = logger.Sync()
	})

	t.Run("production mode starts at info", func(t *testing.T) {
		logger, err := NewLogger(false)
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(false) returned nil logger")
		}
		if ce := logger.Check(zapcore.DebugLevel, "debug check"); ce != nil {
			t.Error("production logger should drop debug entries")
		}
		_ = logger.Sync()
	})
}

func TestDebugFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"1", true},
		{"TRUE", true},
		{" yes ", true},
		{"on", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("BERTLIB_TEST_DEBUG", tt.value)
			if got := DebugFromEnv("BERTLIB_TEST_DEBUG"); got != tt.want {
				t.Errorf("DebugFromEnv with %q = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
