// Package telemetry provides verbose tracing and warnings for the fz CLI.
// Log and LogHTTP write only when --debug or --verbose enabled tracing;
// Warn always writes. All output is directed at stderr; it never
// carries the user-visible "Error:"/"Hint:" failure text, which the error
// taxonomy writes directly.
package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	enabled bool
	logger  *zap.SugaredLogger

	warnOnce   sync.Once
	warnLogger *zap.SugaredLogger
)

// Enable turns on verbose tracing, building a development-mode zap logger
// the first time it is called.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
	if logger == nil {
		logger = buildLogger()
	}
}

// Enabled reports whether verbose tracing is currently active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

func buildLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a no-op logger rather than fail the CLI over
		// a broken tracing path.
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func sugared() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if !enabled || logger == nil {
		return nil
	}
	return logger
}

// Log writes a formatted trace message when verbose tracing is enabled.
func Log(format string, args ...any) {
	if l := sugared(); l != nil {
		l.Debugf(format, args...)
	}
}

// LogHTTP records one request/response pair: method, URL, and the HTTP
// status code, or 0 if the request never produced a response.
func LogHTTP(method, url string, statusCode int) {
	l := sugared()
	if l == nil {
		return
	}
	if statusCode == 0 {
		l.Debugw("http request failed", "method", method, "url", url)
		return
	}
	l.Debugw("http request", "method", method, "url", url, "status", statusCode)
}

// Warn writes a formatted warning to stderr unconditionally — part-report
// failures (spec.md §4.5 step 3) and token-refresh failures (spec.md §4.2)
// are non-fatal but must still reach the user, not just a --debug session.
// Warnings never abort the process — see internal/apierrors for fatal paths.
func Warn(format string, args ...any) {
	warnOnce.Do(func() {
		warnLogger = buildLogger()
	})
	warnLogger.Warnf(format, args...)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}
