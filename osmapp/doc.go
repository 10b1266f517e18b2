// Package osmapp runs the API as a long lived HTTP server.
//
// The app is assembled with fx: the environment is parsed from OSMAPI_* variables, a zap logger and an
// OpenTelemetry tracer provider are created, the snapshot configured through OSMAPI_SNAPSHOT is loaded into
// an in-memory store and the endpoints of the API are registered on a [process.Server]. The rate limiter
// keeps its buckets in Redis when OSMAPI_REDIS_URL is set, or when OSMAPI_REDIS_SECRET names a Secrets
// Manager secret that holds the url. Spans go to stdout, to X-Ray over UDP, or nowhere, depending on
// OSMAPI_OTEL_EXPORTER.
//
// Next to the API the server answers the readiness check at OSMAPI_READINESS_CHECK_PATH and exposes
// Prometheus metrics at OSMAPI_METRICS_PATH. Neither is traced.
//
// # Request scoped logging
//
// Every processed request carries a logger with a request_id and, when the request is traced, the trace_id
// and span_id. Retrieve it with [process.Log]:
//
//	process.Log(ctx).Info("selected nodes", zap.Int("count", n))
//
// # Testing
//
// The osmapptest package builds the same graph on top of fxtest, see [osmapptest.New].
package osmapp
