package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"diskinspector/internal/config"
)

// Logger writes structured audit lines for every external invocation and
// every guard decision. It never writes to stdout, which belongs to the menu.
type Logger struct {
	entry *logrus.Logger
	file  *os.File
}

func NewLogger(cfg *config.Config, verbose bool) (*Logger, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	base.SetLevel(level)

	l := &Logger{entry: base}
	var writers []io.Writer

	if cfg.Logging.File != "" {
		logDir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Logging.File, err)
		}
		l.file = f
		writers = append(writers, f)
	}
	if verbose {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		base.SetOutput(io.Discard)
	case 1:
		base.SetOutput(writers[0])
	default:
		base.SetOutput(io.MultiWriter(writers...))
	}

	return l, nil
}

// NewNop returns a logger that drops everything.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{entry: base}
}

// NewWithWriter returns a logger writing at DEBUG level to w.
func NewWithWriter(w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return &Logger{entry: base}
}

// Log records message at level (DEBUG, INFO, WARN, ERROR) with alternating
// key/value fields.
func (l *Logger) Log(level, message string, fields ...interface{}) {
	entry := l.entry.WithFields(toFields(fields))

	switch level {
	case "DEBUG":
		entry.Debug(message)
	case "WARN":
		entry.Warn(message)
	case "ERROR":
		entry.Error(message)
	default:
		entry.Info(message)
	}
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func toFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields[key] = "(missing)"
			break
		}
		fields[key] = kv[i+1]
	}
	return fields
}
