// Package logging builds the process logger and the security log hook.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options selects the logger level, format and outputs.
type Options struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // optional, appended to besides stderr

	// SecurityFile receives one line per security violation.
	SecurityFile string `yaml:"security_file" split_words:"true"`
}

// DefaultOptions logs text at info level to stderr and security
// violations to security.log.
func DefaultOptions() Options {
	return Options{Level: "info", Format: "text", SecurityFile: "security.log"}
}

// Validate checks the level and format names.
func (o Options) Validate() error {
	if _, err := logrus.ParseLevel(o.Level); err != nil {
		return err
	}
	switch strings.ToLower(o.Format) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", o.Format)
	}
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New builds a logger writing to stderr and, when configured, to a log
// file and the security log. The returned closer releases the files.
func New(o Options, stderr io.Writer) (*logrus.Logger, io.Closer, error) {
	if err := o.Validate(); err != nil {
		return nil, nil, err
	}
	level, _ := logrus.ParseLevel(o.Level)

	logger := logrus.New()
	logger.SetLevel(level)
	if strings.ToLower(o.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var files closers
	out := stderr
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open logfile %s: %w", o.File, err)
		}
		files = append(files, f)
		out = io.MultiWriter(stderr, f)
	}
	logger.SetOutput(out)

	if o.SecurityFile != "" {
		hook, err := OpenSecurityHook(o.SecurityFile, logger)
		if err != nil {
			_ = files.Close()
			return nil, nil, err
		}
		files = append(files, hook)
		logger.AddHook(hook)
	}
	return logger, files, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
