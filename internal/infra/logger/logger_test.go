package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "WARN", Encoding: "json"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn should be enabled")
	}

	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestEncoderConfig(t *testing.T) {
	if enc := encoderConfig("json", true); enc.ConsoleSeparator != "" {
		t.Fatalf("json encoding should keep defaults, got separator %q", enc.ConsoleSeparator)
	}
	if enc := encoderConfig("console", false); enc.ConsoleSeparator != " | " {
		t.Fatalf("unexpected console separator %q", enc.ConsoleSeparator)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_ENCODING", "")

	cfg := FromEnv()
	if cfg.Development || cfg.Level != "debug" || cfg.Encoding != "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
