// Package logging builds the zap logger shared by every ccslice command.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry so ccslice logs can be told apart when
// several jobs share a collector.
const Service = "ccslice"

// Options selects the logger flavor.
type Options struct {
	// Development switches to colored console output with caller lines and
	// debug level.
	Development bool
	// Level overrides the flavor's default level when set.
	Level string
}

// New builds the root logger. Components derive children with Named.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// Scan and fetch failures are reported per record; stack traces would
		// drown them.
		cfg.DisableStacktrace = true
	}
	cfg.EncoderConfig.TimeKey = "ts"

	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		parsed, err := zap.ParseAtomicLevel(strings.ToLower(lvl))
		if err != nil {
			return nil, fmt.Errorf("logging.level %q: %w", opts.Level, err)
		}
		cfg.Level = parsed
	}

	logger, err := cfg.Build(zap.Fields(zap.String("service", Service)))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
