package osmapptest

import (
	"strconv"
	"testing"
)

// Env provides a chainable builder for setting [osmapp.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets the [osmapp.BaseEnvironment] env vars to test defaults.
// Port is required because each test must use a unique port to avoid collisions.
//
// Defaults:
//   - OSMAPI_SERVICE_NAME: "test"
//   - OSMAPI_OTEL_EXPORTER: "none"
//   - OSMAPI_LOG_LEVEL: "error"
//   - AWS_REGION: "us-east-1"
//   - AWS_ACCESS_KEY_ID: "test"
//   - AWS_SECRET_ACCESS_KEY: "test"
//
// Use the returned [Env] to override individual values:
//
//	osmapptest.SetBaseEnv(t, 18085).Snapshot("testdata/small.osm").ReadOnly()
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("OSMAPI_PORT", strconv.Itoa(port))
	t.Setenv("OSMAPI_SERVICE_NAME", "test")
	t.Setenv("OSMAPI_OTEL_EXPORTER", "none")
	t.Setenv("OSMAPI_LOG_LEVEL", "error")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	return &Env{t: t}
}

// Snapshot overrides OSMAPI_SNAPSHOT.
func (e *Env) Snapshot(location string) *Env {
	e.t.Helper()
	e.t.Setenv("OSMAPI_SNAPSHOT", location)
	return e
}

// ReadOnly sets OSMAPI_READ_ONLY.
func (e *Env) ReadOnly() *Env {
	e.t.Helper()
	e.t.Setenv("OSMAPI_READ_ONLY", "true")
	return e
}

// ReadinessCheckPath overrides OSMAPI_READINESS_CHECK_PATH.
func (e *Env) ReadinessCheckPath(path string) *Env {
	e.t.Helper()
	e.t.Setenv("OSMAPI_READINESS_CHECK_PATH", path)
	return e
}

// RateLimit overrides the limits of clients that are not moderators.
func (e *Env) RateLimit(bytesPerSec, maxBytes int64) *Env {
	e.t.Helper()
	e.t.Setenv("OSMAPI_RATELIMIT_BYTES_PER_SEC", strconv.FormatInt(bytesPerSec, 10))
	e.t.Setenv("OSMAPI_RATELIMIT_MAX_BYTES", strconv.FormatInt(maxBytes, 10))
	return e
}
