// Package logging builds the logrus logger shared by the verinews binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

// EnvLogFile names a file that receives a copy of every log line.
const EnvLogFile = "LOG_FILE"

type Options struct {
	// Level is a logrus level name; empty means info.
	Level string
	// File, when set, receives every entry alongside Info. Falls back to the
	// LOG_FILE environment variable.
	File string
	// Info receives trace, debug and info entries.
	Info io.Writer
	// Warn receives warn and above.
	Warn io.Writer
}

// New returns a configured logger and a function that closes the log file,
// if one was opened. A log file that cannot be opened is reported on Warn and
// otherwise ignored.
func New(opts Options) (*logrus.Logger, func() error, error) {
	level := logrus.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		var err error
		if level, err = logrus.ParseLevel(s); err != nil {
			return nil, nil, fmt.Errorf("logging: %w", err)
		}
	}
	info, warn := opts.Info, opts.Warn
	if info == nil {
		info = os.Stdout
	}
	if warn == nil {
		warn = os.Stderr
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	closeFn := func() error { return nil }

	path := opts.File
	if path == "" {
		path = os.Getenv(EnvLogFile)
	}
	if path != "" {
		f, err := openLogFile(path)
		if err == nil {
			log.SetOutput(io.MultiWriter(f, info))
			return log, f.Close, nil
		}
		fmt.Fprintf(warn, "logging: %v; using standard streams\n", err)
	}

	log.SetOutput(io.Discard)
	log.AddHook(&writer.Hook{
		Writer:    warn,
		LogLevels: []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel},
	})
	log.AddHook(&writer.Hook{
		Writer:    info,
		LogLevels: []logrus.Level{logrus.TraceLevel, logrus.DebugLevel, logrus.InfoLevel},
	})
	return log, closeFn, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
