package osmapp

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App is the API server with all of its dependencies.
type App struct {
	app *fx.App
}

// AppConfig collects what the options of NewApp configure.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option
}

// Option changes the AppConfig.
type Option func(*AppConfig)

// WithFx adds fx options to the graph, for example to invoke a function that registers extra routes.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler replaces the handler of the readiness check, which otherwise always answers 200.
func WithHealthHandler(h func(http.ResponseWriter, *http.Request)) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// FxOptions returns the options of the complete DI graph of the app. Extra routes can be registered by
// invoking a function that takes the *process.Server.
func FxOptions[E Environment](opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	baseOpts := make([]fx.Option, 0, 16+len(cfg.FxOptions))
	baseOpts = append(baseOpts,
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(func(e E) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(NewHTTPTransport),
		fx.Provide(NewHTTPClient),
		fx.Provide(NewAWSConfig),
		fx.Provide(NewS3Client),
		fx.Provide(NewSecretReader),
		fx.Provide(NewStore),
		fx.Provide(NewLimiter),
		fx.Provide(NewRegistry),
		fx.Provide(NewMetrics),
		fx.Provide(NewProcessServer),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer),
		fx.Invoke(registerRoutes),
		fx.Invoke(startServerHook),
	)

	return append(baseOpts, cfg.FxOptions...)
}

// NewApp creates the API server app with dependency injection.
//
// Example:
//
//	osmapp.NewApp[osmapp.BaseEnvironment]().Run()
func NewApp[E Environment](opts ...Option) *App {
	return &App{app: fx.New(FxOptions[E](opts...)...)}
}

// Run starts the server and blocks until the process receives SIGINT or SIGTERM.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application and stops it once ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}

// Err returns an error if constructing the app failed.
func (a *App) Err() error {
	return a.app.Err()
}
