// Package logging builds the process logger: JSON lines on stderr plus an
// append-only log file.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// File is opened in append mode and created when missing.
	File  string
	Level string // debug, info, warn or error
	// Console receives the same entries as File. Defaults to os.Stderr.
	Console io.Writer
}

// New returns a logger named "linepay" and a function that flushes and
// closes the log file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	file, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
	}

	encoder := zapcore.NewJSONEncoder(encoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(console)), level),
		zapcore.NewCore(encoder.Clone(), zapcore.Lock(file), level),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).Named("linepay")

	closer := func() error {
		_ = logger.Sync()
		return file.Close()
	}
	return logger, closer, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}
