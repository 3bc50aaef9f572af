package badger

import "log/slog"

// Option configures a Ledger.
type Option func(*Ledger)

// WithDataDir sets the on-disk location. Without it the store is in-memory.
func WithDataDir(dir string) Option {
	return func(l *Ledger) {
		l.dataDir = dir
	}
}

// WithLogger sets the logger badger and the driver report to.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMaxConflictRetries bounds how often a commit is replayed after an
// optimistic-concurrency conflict. Default is 16.
func WithMaxConflictRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}
