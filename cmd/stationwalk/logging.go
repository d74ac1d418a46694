package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type logOptions struct {
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	debug      bool
}

// newLogger returns a text logger writing to stdout, or to a rotated file
// when one is given. The returned func closes the file.
func newLogger(opts logOptions) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	closeFn := func() {}
	if opts.file != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.file,
			MaxSize:    opts.maxSizeMB,
			MaxBackups: opts.maxBackups,
			MaxAge:     opts.maxAgeDays,
			Compress:   true,
		}
		out = rotator
		closeFn = func() { _ = rotator.Close() }
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeFn
}
