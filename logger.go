package osmhttp

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger gets informed about errors that cannot be reported to the client anymore.
type Logger interface {
	// LogAbortedResponse is called when a response is aborted because writing to the client failed.
	LogAbortedResponse(err error)
	// LogTeardownError is called for errors swallowed while closing a response.
	LogTeardownError(err error)
	// LogUnhandledError is called for errors that reached the top of request processing.
	LogUnhandledError(err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogAbortedResponse(err error) {
	l.Logger.Printf("osmhttp: response aborted: %s", err)
}

func (l stdLogger) LogTeardownError(err error) {
	l.Logger.Printf("osmhttp: error during response teardown: %s", err)
}

func (l stdLogger) LogUnhandledError(err error) {
	l.Logger.Printf("osmhttp: unhandled error: %s", err)
}

// NewStdLogger logs through a standard library logger.
func NewStdLogger(l *log.Logger) Logger {
	return stdLogger{l}
}

// TestLogger counts every call and forwards to the test log.
type TestLogger struct {
	tb testing.TB

	NumAbortedResponse int64
	NumTeardownError   int64
	NumUnhandledError  int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogAbortedResponse(err error) {
	atomic.AddInt64(&l.NumAbortedResponse, 1)
	l.tb.Logf("osmhttp: response aborted: %s", err)
}

func (l *TestLogger) LogTeardownError(err error) {
	atomic.AddInt64(&l.NumTeardownError, 1)
	l.tb.Logf("osmhttp: error during response teardown: %s", err)
}

func (l *TestLogger) LogUnhandledError(err error) {
	atomic.AddInt64(&l.NumUnhandledError, 1)
	l.tb.Logf("osmhttp: unhandled error: %s", err)
}

var _ Logger = &TestLogger{}
