// Package hdoclog provides the package-wide structured logger used by
// HDocHistory's commit/undo/redo/merge operations, grounded on the
// zap-based logging the rest of the example pack uses at its process
// entry points.
package hdoclog

import "go.uber.org/zap"

var logger = mustNop()

func mustNop() *zap.Logger {
	return zap.NewNop()
}

// L returns the current package logger. Defaults to a no-op logger so
// importing hdoc never writes output unless a caller opts in via
// SetLogger.
func L() *zap.Logger {
	return logger
}

// SetLogger installs l as the package logger, e.g. a caller's own
// zap.NewProduction()/zap.NewDevelopment() instance.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = mustNop()
	}
	logger = l
}
