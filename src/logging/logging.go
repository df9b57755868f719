// Package logging configures the process-wide logrus logger that every
// package logs through.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// EnvLevel overrides the level of both profiles.
const EnvLevel = "INSTANCE_PROVISION_LOG_LEVEL"

// Formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// Configure applies opts to the standard logger. An empty level means
// info, an empty format means text and a nil Out means stderr.
func Configure(opts Options) error {
	level := logrus.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := logrus.ParseLevel(s)
		if err != nil {
			return oops.In("logging").With("level", s).Wrapf(err, "invalid log level")
		}
		level = parsed
	}
	var formatter logrus.Formatter
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatText:
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case FormatJSON:
		formatter = &logrus.JSONFormatter{}
	default:
		return oops.In("logging").With("format", opts.Format).Errorf("unsupported log format %q (want text|json)", opts.Format)
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	std := logrus.StandardLogger()
	std.SetLevel(level)
	std.SetFormatter(formatter)
	std.SetOutput(out)
	return nil
}

var testOnce sync.Once

// ForTests silences the standard logger unless EnvLevel is set, in which
// case it logs at that level to stderr. Only the first call has an effect.
func ForTests() {
	testOnce.Do(func() {
		level := os.Getenv(EnvLevel)
		if level == "" {
			logrus.SetOutput(io.Discard)
			logrus.SetLevel(logrus.PanicLevel)
			return
		}
		if err := Configure(Options{Level: level}); err != nil {
			logrus.SetLevel(logrus.DebugLevel)
		}
	})
}
