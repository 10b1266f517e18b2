// Package process runs the request orchestration of the API. Every routed request is authenticated, admitted
// by the rate limiter, dispatched by method to its handler and completed with a log line and metrics.
package process

import (
	"log"
	"net/http"
	"time"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/handler"
	"github.com/advdv/osmhttp/ratelimit"
	"github.com/advdv/osmhttp/selection"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config of the orchestrator.
type Config struct {
	// Generator is written into every document.
	Generator string
	// MaxPayload is the largest request body accepted, after decompression.
	MaxPayload int64
}

// DefaultConfig returns the configuration used when nothing else is specified.
func DefaultConfig() Config {
	return Config{Generator: "osmapi 0.6", MaxPayload: 50_000_000}
}

// Middleware wraps the handling of routed requests.
type Middleware func(http.Handler) http.Handler

// Wrap takes the inner handler h and wraps it with middleware. The middleware provided first is called first
// and is the outer most wrapping, the middleware provided last is closest to the handler.
func Wrap(h http.Handler, m ...Middleware) http.Handler {
	wrapped := h
	for i := len(m) - 1; i >= 0; i-- {
		wrapped = m[i](wrapped)
	}

	return wrapped
}

// Server routes requests to handler constructors and processes them.
type Server struct {
	cfg     Config
	sels    selection.Factory
	updates selection.UpdateFactory
	users   selection.UserStore
	limiter ratelimit.Limiter
	logs    osmhttp.Logger
	zlog    *zap.Logger
	metrics *Metrics
	now     func() time.Time

	mux         *http.ServeMux
	middlewares struct {
		captured bool
		buffered []Middleware
	}
}

// Option configures the server.
type Option func(*Server)

// WithUpdates enables POST and PUT requests.
func WithUpdates(f selection.UpdateFactory) Option { return func(s *Server) { s.updates = f } }

// WithUsers enables authentication of bearer tokens.
func WithUsers(u selection.UserStore) Option { return func(s *Server) { s.users = u } }

// WithLimiter sets the rate limiter, requests are never throttled without one.
func WithLimiter(l ratelimit.Limiter) Option { return func(s *Server) { s.limiter = l } }

// WithLogger sets the logger for errors that can't be reported to the client.
func WithLogger(l osmhttp.Logger) Option { return func(s *Server) { s.logs = l } }

// WithZap sets the logger that request scoped loggers derive from.
func WithZap(l *zap.Logger) Option { return func(s *Server) { s.zlog = l } }

// WithMetrics sets where request metrics are recorded.
func WithMetrics(m *Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithClock replaces the clock, for tests.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// New inits a server that reads from sels.
func New(cfg Config, sels selection.Factory, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		sels:    sels,
		limiter: ratelimit.Unlimited{},
		logs:    osmhttp.NewStdLogger(log.Default()),
		zlog:    zap.NewNop(),
		now:     time.Now,
		mux:     http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}

	return s
}

// Use adds middleware to every route that is handled after it.
func (s *Server) Use(mw ...Middleware) {
	s.ensureNoUseAfterHandle()
	s.middlewares.buffered = append(s.middlewares.buffered, mw...)
}

// Handle registers the constructor for the pattern. The first call also makes unrouted paths respond with
// not found.
func (s *Server) Handle(pattern string, c handler.Constructor) {
	if !s.middlewares.captured {
		s.handle("/", "unrouted", nil)
	}

	s.handle(pattern, pattern, c)
}

// ServeHTTP makes the server implement the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handle(pattern, route string, c handler.Constructor) {
	s.middlewares.captured = true

	s.mux.Handle(pattern, Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.process(w, r, route, c)
	}), s.middlewares.buffered...))
}

func (s *Server) ensureNoUseAfterHandle() {
	if s.middlewares.captured {
		panic("process: cannot call Use() after calling Handle")
	}
}

var _ handler.Registrar = &Server{}
