package repositories

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes Badger's printf style logs to the relay logger,
// tagged so they can be told apart from the relay's own entries.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With("component", "badger")}
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(clean(format, args))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(clean(format, args))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(clean(format, args))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(clean(format, args))
}

// Badger terminates most of its messages with a newline.
func clean(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
