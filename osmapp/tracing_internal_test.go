package osmapp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx/fxtest"
)

func TestNewExporter(t *testing.T) {
	t.Run("stdout exporter", func(t *testing.T) {
		exp, err := newExporter(t.Context(), "stdout")
		require.NoError(t, err)
		assert.NotNil(t, exp)
	})

	t.Run("empty defaults to stdout", func(t *testing.T) {
		exp, err := newExporter(t.Context(), "")
		require.NoError(t, err)
		assert.NotNil(t, exp)
	})

	t.Run("unsupported exporter returns error", func(t *testing.T) {
		_, err := newExporter(t.Context(), "jaeger")
		require.EqualError(t, err, `unsupported OSMAPI_OTEL_EXPORTER: "jaeger" (supported: stdout, xrayudp, none)`)
	})
}

func TestNewTracerProvider(t *testing.T) {
	t.Run("none is a noop provider", func(t *testing.T) {
		env := testEnv{}
		env.OtelExporter = "none"

		lc := fxtest.NewLifecycle(t)
		tp, err := NewTracerProvider(lc, env)
		require.NoError(t, err)
		assert.IsType(t, noop.TracerProvider{}, tp)
	})

	t.Run("stdout provider is shut down on stop", func(t *testing.T) {
		env := testEnv{}
		env.OtelExporter = "stdout"
		env.ServiceName = "svc"

		lc := fxtest.NewLifecycle(t)
		tp, err := NewTracerProvider(lc, env)
		require.NoError(t, err)
		assert.IsType(t, &sdktrace.TracerProvider{}, tp)

		lc.RequireStart()
		lc.RequireStop()
	})
}

func TestNewResource(t *testing.T) {
	res, err := newResource(t.Context(), "stdout", "my-service")
	require.NoError(t, err)

	found := false
	for _, attr := range res.Attributes() {
		if string(attr.Key) == "service.name" && attr.Value.AsString() == "my-service" {
			found = true
			break
		}
	}
	assert.True(t, found, "expected service.name attribute in resource")
}

func TestNewPropagator(t *testing.T) {
	env := testEnv{}
	env.OtelExporter = "xrayudp"
	assert.Equal(t, []string{"X-Amzn-Trace-Id"}, NewPropagator(env).Fields())

	env.OtelExporter = "stdout"
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, NewPropagator(env).Fields())
}

func TestWithTracingExcludesPaths(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	h := withTracing(tp, NewPropagator(testEnv{}), "svc", "/health")(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	for _, path := range []string{"/health", "/api/0.6/node/1"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/0.6/node/1", spans[0].Name())
}
