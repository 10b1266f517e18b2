package osmapp

import (
	"context"
	"net/http"
	"time"

	"github.com/advdv/osmhttp/process"
)

// DefaultDeadlineBuffer is the time reserved before the server timeout for writing an error response.
const DefaultDeadlineBuffer = 500 * time.Millisecond

// TimeoutConfig holds timeout configuration for the HTTP server.
type TimeoutConfig struct {
	// ServerTimeout bounds reading a request and writing its response.
	ServerTimeout time.Duration

	// DeadlineBuffer is subtracted from the server timeout for the deadline of the request context. Defaults
	// to DefaultDeadlineBuffer.
	DeadlineBuffer time.Duration
}

// ServerTimeouts returns the http.Server timeout values. Headers must arrive quickly, the body and the
// response may take up to the server timeout.
func (tc TimeoutConfig) ServerTimeouts() (readHeaderTimeout, readTimeout, writeTimeout, idleTimeout time.Duration) {
	timeout := tc.ServerTimeout
	readHeaderTimeout = min(timeout, 10*time.Second)
	readTimeout = timeout
	writeTimeout = timeout
	idleTimeout = min(timeout, 2*time.Minute)
	return
}

// RequestDeadline is the deadline for the context of a request that starts at start.
func (tc TimeoutConfig) RequestDeadline(start time.Time) time.Time {
	buffer := tc.DeadlineBuffer
	if buffer <= 0 {
		buffer = DefaultDeadlineBuffer
	}

	timeout := tc.ServerTimeout - buffer
	if timeout <= 0 {
		timeout = tc.ServerTimeout
	}

	return start.Add(timeout)
}

// WithRequestDeadline returns middleware that bounds the context of each request so that work on the data
// stops before the server gives up on writing the response.
func WithRequestDeadline(tc TimeoutConfig) process.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tc.ServerTimeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithDeadline(r.Context(), tc.RequestDeadline(time.Now()))
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
