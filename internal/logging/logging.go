// Package logging builds the zap loggers used by the CLI.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger flavour.
type Options struct {
	// Verbose switches to a human-readable development logger at debug level.
	Verbose bool
	// Output replaces stderr. Used by tests.
	Output zapcore.WriteSyncer
}

// New returns a development logger when verbose, otherwise a JSON logger on
// stderr that only reports warnings and errors.
func New(opts Options) (*zap.Logger, error) {
	if opts.Output != nil {
		return newWithOutput(opts), nil
	}

	if opts.Verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to build development logger: %w", err)
		}
		return logger, nil
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.WarnLevel),
		Encoding:         "json",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func newWithOutput(opts Options) *zap.Logger {
	if opts.Verbose {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		return zap.New(zapcore.NewCore(enc, opts.Output, zapcore.DebugLevel), zap.Development())
	}

	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, opts.Output, zapcore.WarnLevel))
}
