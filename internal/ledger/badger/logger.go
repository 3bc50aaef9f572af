package badger

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger adapts slog to badger's printf-style logger.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With("component", "ledger.badger")}
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(msg(format, args))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(msg(format, args))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Info(msg(format, args))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(msg(format, args))
}

func msg(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
