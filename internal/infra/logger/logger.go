package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config drives how the zap logger is built.
type Config struct {
	Development bool
	Level       string
	Encoding    string
}

// FromEnv reads APP_ENV, LOG_LEVEL and LOG_ENCODING.
func FromEnv() Config {
	dev := os.Getenv("APP_ENV") != "production"
	encoding := os.Getenv("LOG_ENCODING")
	if encoding == "" && dev {
		encoding = "console"
	}
	return Config{
		Development: dev,
		Level:       os.Getenv("LOG_LEVEL"),
		Encoding:    encoding,
	}
}

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// MustInit builds the process logger and panics if cfg is invalid.
func MustInit(cfg Config) *zap.Logger {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		_ = global.Sync()
	}
	global = l
	return l
}

// Sync flushes the process logger, ignoring errors from non-syncable outputs.
func Sync() error {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return nil
	}

	if err := l.Sync(); err != nil {
		if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) || errors.Is(err, os.ErrInvalid) {
			return nil
		}
		return err
	}
	return nil
}

// New returns a zap.Logger configured according to cfg.
func New(cfg Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Encoding != "" {
		zapCfg.Encoding = cfg.Encoding
	}
	zapCfg.EncoderConfig = encoderConfig(zapCfg.Encoding, colorize())

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zapCfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func encoderConfig(encoding string, colors bool) zapcore.EncoderConfig {
	enc := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
	}
	if encoding != "console" {
		return enc
	}

	enc.ConsoleSeparator = " | "
	enc.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	if colors {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return enc
}

func colorize() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
