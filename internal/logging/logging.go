package logging

import (
	"fmt"
	"log/syslog"
	"os"

	"github.com/sirupsen/logrus"
	logrussyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// Fields carries structured context attached to a log line.
type Fields = logrus.Fields

// Logger is the leveled, contextual sink the supervisor core treats as an
// external collaborator: the core only calls Debug/Info/Warn/Error,
// never reaches into logrus directly.
type Logger struct {
	entry *logrus.Logger
}

// Config selects the log spec and verbosity (the -l and -v flags the
// three binaries accept).
type Config struct {
	Spec    string
	Verbose bool
	Debug   bool
}

// New builds a Logger from a Config, wiring up whichever sink the log spec
// names.
func New(cfg Config) (*Logger, error) {
	spec, err := ParseSpec(cfg.Spec)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetFormatter(newTextFormatter())
	l.SetReportCaller(true)
	l.SetLevel(levelFor(cfg))

	switch spec.Kind {
	case KindStderr:
		l.SetOutput(os.Stderr)
	case KindFile:
		f, err := os.OpenFile(spec.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %q: %w", spec.Path, err)
		}
		l.SetOutput(f)
	case KindUserFile:
		l.SetOutput(os.Stderr)
		hook, err := newUserFileHook(spec.Path)
		if err != nil {
			return nil, err
		}
		l.AddHook(hook)
	case KindSyslog:
		l.SetOutput(os.Stderr)
		hook, err := logrussyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, "tsdfx")
		if err != nil {
			return nil, fmt.Errorf("logging: connect to syslog: %w", err)
		}
		l.AddHook(hook)
	}

	return &Logger{entry: l}, nil
}

func levelFor(cfg Config) logrus.Level {
	switch {
	case cfg.Debug:
		return logrus.DebugLevel
	case cfg.Verbose:
		return logrus.InfoLevel
	default:
		return logrus.WarnLevel
	}
}

// Debug logs a debug-level line with optional structured fields.
func (l *Logger) Debug(msg string, ctx ...Fields) { l.log(logrus.DebugLevel, msg, ctx) }

// Info logs an info-level line.
func (l *Logger) Info(msg string, ctx ...Fields) { l.log(logrus.InfoLevel, msg, ctx) }

// Warn logs a warning-level line: transient filesystem and
// protocol-violation errors are logged at this level.
func (l *Logger) Warn(msg string, ctx ...Fields) { l.log(logrus.WarnLevel, msg, ctx) }

// Error logs an error-level, user-visible line. In a scanner logging to
// stderr, such lines reach the supervisor, which tees them into the
// per-map recent-log; a copier's stderr lines go to the supervisor's own
// log only.
func (l *Logger) Error(msg string, ctx ...Fields) { l.log(logrus.ErrorLevel, msg, ctx) }

func (l *Logger) log(level logrus.Level, msg string, ctx []Fields) {
	entry := logrus.NewEntry(l.entry)
	for _, f := range ctx {
		entry = entry.WithFields(f)
	}
	entry.Log(level, msg)
}
