package osmapp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/advdv/osmhttp/api06"
	"github.com/advdv/osmhttp/process"
	"github.com/advdv/osmhttp/ratelimit"
	"github.com/advdv/osmhttp/selection/memstore"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServerConfig customizes the HTTP server.
type ServerConfig struct {
	HealthHandler func(http.ResponseWriter, *http.Request)
}

// ProcessParams holds the dependencies of the request processing.
type ProcessParams struct {
	fx.In

	Env     Environment
	Store   *memstore.Store
	Limiter ratelimit.Limiter
	Logger  *zap.Logger
	Metrics *process.Metrics
}

// NewProcessServer creates the server that processes API requests. Routes are registered on it afterwards.
func NewProcessServer(p ProcessParams) *process.Server {
	srv := process.New(p.Env.processConfig(), p.Store,
		process.WithUpdates(p.Store),
		process.WithUsers(p.Store.Users()),
		process.WithLimiter(p.Limiter),
		process.WithLogger(NewZapLogger(p.Logger)),
		process.WithZap(p.Logger.Named("process")),
		process.WithMetrics(p.Metrics))

	srv.Use(WithRequestDeadline(TimeoutConfig{ServerTimeout: p.Env.serverTimeout()}))
	return srv
}

// registerRoutes adds the endpoints of the API.
func registerRoutes(srv *process.Server, env Environment) {
	api06.Register(srv, env.apiConfig())
}

// ServerParams are the dependencies of NewServer.
type ServerParams struct {
	fx.In

	Env        Environment
	API        *process.Server
	Registry   *prometheus.Registry
	Logger     *zap.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// NewServer creates the HTTP server. Next to the API it serves the health check and the metrics, neither of
// which is traced.
func NewServer(params ServerParams, cfg ServerConfig) *http.Server {
	healthPath, metricsPath := params.Env.readinessCheckPath(), params.Env.metricsPath()

	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, healthHandler)
	mux.Handle(metricsPath, metricsHandler(params.Registry))
	mux.Handle("/", params.API)

	handler := withTracing(params.TracerProv, params.Propagator, params.Env.serviceName(),
		healthPath, metricsPath)(mux)

	tc := TimeoutConfig{ServerTimeout: params.Env.serverTimeout()}
	readHeaderTimeout, readTimeout, writeTimeout, idleTimeout := tc.ServerTimeouts()

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", params.Env.port()),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          zap.NewStdLog(params.Logger.Named("http")),
	}
}

// startServerHook listens in the background once the app starts and shuts the server down gracefully when it
// stops.
func startServerHook(lc fx.Lifecycle, server *http.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting server", zap.String("addr", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
