package logging

import (
	"fmt"
	"io"
	log "log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LevelTrace sits below debug and carries raw payload bodies.
const LevelTrace = log.Level(-8)

var logLevelMap = map[string]log.Level{
	"trace": LevelTrace,
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func ParseLevel(s string) (log.Level, error) {
	lvl, ok := logLevelMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return log.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	return log.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	})), nil
}

// Setup installs a tint console logger on stdout as the slog default.
func Setup(level string) (*log.Logger, error) {
	logger, err := New(os.Stdout, level)
	if err != nil {
		return nil, err
	}
	log.SetDefault(logger)
	return logger, nil
}
