// Package logging sets up logrus the way kubernix wants it: everything
// goes to a per-run log file, and entries at or above the configured log
// level are echoed to the terminal, in color.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// StdoutHook echoes entries at or above threshold to the terminal, in
// color. The base logger keeps writing everything (down to trace) to the
// log file regardless of threshold — the hook only gates the terminal.
type StdoutHook struct {
	Threshold logrus.Level
}

func (h *StdoutHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *StdoutHook) Fire(entry *logrus.Entry) error {
	if entry.Level > h.Threshold {
		return nil
	}
	out := os.Stdout
	c := color.New(color.FgWhite)
	switch entry.Level {
	case logrus.WarnLevel:
		c = color.New(color.FgYellow)
	case logrus.ErrorLevel, logrus.FatalLevel:
		c = color.New(color.FgRed)
		out = os.Stderr
	case logrus.DebugLevel, logrus.TraceLevel:
		c = color.New(color.FgHiBlack)
	}
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = c.Fprint(out, line)
	return err
}

// levelFromString maps the CLI/config log-level strings onto logrus levels.
func levelFromString(level string) logrus.Level {
	switch level {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Setup configures the package-global logrus logger: full verbosity to
// logPath, filtered verbosity to the terminal.
func Setup(logPath string, level string) error {
	logrus.SetLevel(logrus.TraceLevel)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(io.Discard)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("unable to open log file %s: %w", logPath, err)
		}
		logrus.SetOutput(f)
	}

	logrus.AddHook(&StdoutHook{Threshold: levelFromString(level)})
	return nil
}
