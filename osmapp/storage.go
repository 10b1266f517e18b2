package osmapp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/advdv/osmhttp/selection/memstore"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const snapshotLoadTimeout = 10 * time.Minute

// NewHTTPTransport creates an HTTP RoundTripper instrumented with OpenTelemetry tracing.
// The TracerProvider and Propagator are explicitly injected to avoid global state.
func NewHTTPTransport(tp trace.TracerProvider, prop propagation.TextMapPropagator) http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(prop),
	)
}

// NewHTTPClient creates an *http.Client that uses the instrumented transport.
func NewHTTPClient(t http.RoundTripper) *http.Client {
	return &http.Client{Transport: t}
}

// StoreParams holds the dependencies for creating the store.
type StoreParams struct {
	fx.In

	Env    Environment
	S3     *s3.Client
	Client *http.Client
	Logger *zap.Logger
}

// NewStore creates the in-memory store and loads the configured snapshot into it.
func NewStore(p StoreParams) (*memstore.Store, error) {
	store := memstore.New(memstore.WithReadOnly(p.Env.readOnly()))

	location := p.Env.snapshot()
	if location == "" {
		p.Logger.Warn("no snapshot configured, serving an empty store")
		return store, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotLoadTimeout)
	defer cancel()

	start := time.Now()
	if err := LoadSnapshot(ctx, store, location, p.S3, p.Client); err != nil {
		return nil, err
	}

	st := store.Stats()
	p.Logger.Info("loaded snapshot",
		zap.String("location", location),
		zap.String("nodes", humanize.Comma(int64(st.Nodes))),
		zap.String("ways", humanize.Comma(int64(st.Ways))),
		zap.String("relations", humanize.Comma(int64(st.Relations))),
		zap.String("changesets", humanize.Comma(int64(st.Changesets))),
		zap.Duration("took", time.Since(start)))

	return store, nil
}

// LoadSnapshot decodes the snapshot at location into store. Next to the locations the store opens itself,
// http and https urls are fetched with client.
func LoadSnapshot(
	ctx context.Context, store *memstore.Store, location string, getter memstore.ObjectGetter, client *http.Client,
) error {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return store.Load(ctx, location, getter)
	}

	err := requests.URL(location).
		Client(client).
		Handle(func(res *http.Response) error {
			var rd io.Reader = res.Body
			if strings.HasSuffix(res.Request.URL.Path, ".gz") {
				zr, err := gzip.NewReader(res.Body)
				if err != nil {
					return errors.Wrap(err, "open gzip stream")
				}
				defer zr.Close()
				rd = zr
			}

			return store.Decode(rd)
		}).
		Fetch(ctx)

	return errors.Wrapf(err, "load %q", location)
}

var _ memstore.ObjectGetter = (*s3.Client)(nil)
