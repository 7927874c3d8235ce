package logging

import (
	"io"
	"log/syslog"
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger writing structured lines to stderr and,
// when path is non-empty, to an append-only log file. A syslog mirror is
// attached best-effort; its absence is never an error. The minimum level
// comes from the supplied level name, defaulting to info.
func New(path, level string) (zerolog.Logger, func()) {
	writers := []io.Writer{os.Stderr}
	closers := []io.Closer{}

	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			writers = append(writers, file)
			closers = append(closers, file)
		}
	}

	if sys, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "wifi-sentinel"); err == nil {
		writers = append(writers, zerolog.SyslogLevelWriter(sys))
		closers = append(closers, sys)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(level)).
		With().Timestamp().Logger()

	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
	return logger, closeAll
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
