// Package logging holds the process-wide zap logger. main calls Init
// once at startup; every other package logs through L or S.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once  sync.Once
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Init builds the shared logger. With ENVIRONMENT=production it emits
// JSON with ISO8601 timestamps; anything else gets the colored console
// encoder. LOG_LEVEL overrides the default level in either mode.
func Init() {
	once.Do(func() {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if os.Getenv("ENVIRONMENT") == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		if raw := os.Getenv("LOG_LEVEL"); raw != "" {
			if lvl, err := zapcore.ParseLevel(raw); err == nil {
				cfg.Level = zap.NewAtomicLevelAt(lvl)
			}
		}

		built, err := cfg.Build()
		if err != nil {
			built = zap.NewNop()
		}
		log = built
		sugar = built.Sugar()
	})
}

// L returns the shared logger, initializing it on first use.
func L() *zap.Logger {
	Init()
	return log
}

// S returns the sugared form for printf-style call sites.
func S() *zap.SugaredLogger {
	Init()
	return sugar
}

// Sync flushes buffered entries. Deferred from main.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
