package osmapp

import (
	"time"

	"github.com/advdv/osmhttp/api06"
	"github.com/advdv/osmhttp/process"
	"github.com/advdv/osmhttp/ratelimit"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	port() int
	serviceName() string
	readinessCheckPath() string
	metricsPath() string
	logLevel() zapcore.Level
	otelExporter() string
	awsRegion() string
	serverTimeout() time.Duration
	snapshot() string
	readOnly() bool
	redisURL() string
	redisSecret() (id, path string)
	processConfig() process.Config
	apiConfig() api06.Config
	rateLimitConfig() ratelimit.Config
}

// BaseEnvironment contains the environment variables of the API server.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Port               int           `env:"OSMAPI_PORT,required"`
	ServiceName        string        `env:"OSMAPI_SERVICE_NAME" envDefault:"osmapi"`
	ReadinessCheckPath string        `env:"OSMAPI_READINESS_CHECK_PATH" envDefault:"/health"`
	MetricsPath        string        `env:"OSMAPI_METRICS_PATH" envDefault:"/metrics"`
	LogLevel           zapcore.Level `env:"OSMAPI_LOG_LEVEL" envDefault:"info"`
	OtelExporter       string        `env:"OSMAPI_OTEL_EXPORTER" envDefault:"stdout"`
	AWSRegion          string        `env:"AWS_REGION"`
	ServerTimeout      time.Duration `env:"OSMAPI_SERVER_TIMEOUT" envDefault:"5m"`

	Generator string `env:"OSMAPI_GENERATOR" envDefault:"osmapi 0.6"`
	// Snapshot is loaded into the store on start: a path, optionally ending in ".gz", an "s3://bucket/key"
	// or an http(s) url.
	Snapshot   string  `env:"OSMAPI_SNAPSHOT"`
	ReadOnly   bool    `env:"OSMAPI_READ_ONLY" envDefault:"false"`
	MaxArea    float64 `env:"OSMAPI_MAX_AREA" envDefault:"0.25"`
	MaxNodes   int     `env:"OSMAPI_MAX_NODES" envDefault:"50000"`
	MaxPayload int64   `env:"OSMAPI_MAX_PAYLOAD" envDefault:"50000000"`

	RateLimitBytesPerSec int64  `env:"OSMAPI_RATELIMIT_BYTES_PER_SEC" envDefault:"102400"`
	RateLimitMaxBytes    int64  `env:"OSMAPI_RATELIMIT_MAX_BYTES" envDefault:"262144000"`
	ModeratorBytesPerSec int64  `env:"OSMAPI_MODERATOR_BYTES_PER_SEC" envDefault:"1048576"`
	ModeratorMaxBytes    int64  `env:"OSMAPI_MODERATOR_MAX_BYTES" envDefault:"1073741824"`
	RedisURL             string `env:"OSMAPI_REDIS_URL"`
	// RedisSecret names a Secrets Manager secret holding the redis url, used when RedisURL is empty. With
	// RedisSecretPath the secret is JSON and the url is read from that path.
	RedisSecret     string `env:"OSMAPI_REDIS_SECRET"`
	RedisSecretPath string `env:"OSMAPI_REDIS_SECRET_PATH"`
}

func (e BaseEnvironment) port() int                    { return e.Port }
func (e BaseEnvironment) serviceName() string          { return e.ServiceName }
func (e BaseEnvironment) readinessCheckPath() string   { return e.ReadinessCheckPath }
func (e BaseEnvironment) metricsPath() string          { return e.MetricsPath }
func (e BaseEnvironment) logLevel() zapcore.Level      { return e.LogLevel }
func (e BaseEnvironment) otelExporter() string         { return e.OtelExporter }
func (e BaseEnvironment) awsRegion() string            { return e.AWSRegion }
func (e BaseEnvironment) serverTimeout() time.Duration { return e.ServerTimeout }
func (e BaseEnvironment) snapshot() string             { return e.Snapshot }
func (e BaseEnvironment) readOnly() bool               { return e.ReadOnly }
func (e BaseEnvironment) redisURL() string             { return e.RedisURL }

func (e BaseEnvironment) redisSecret() (id, path string) { return e.RedisSecret, e.RedisSecretPath }

func (e BaseEnvironment) processConfig() process.Config {
	return process.Config{Generator: e.Generator, MaxPayload: e.MaxPayload}
}

func (e BaseEnvironment) apiConfig() api06.Config {
	return api06.Config{MaxArea: e.MaxArea, MaxNodes: e.MaxNodes}
}

func (e BaseEnvironment) rateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Default:   ratelimit.Limits{BytesPerSec: e.RateLimitBytesPerSec, MaxBytes: e.RateLimitMaxBytes},
		Moderator: ratelimit.Limits{BytesPerSec: e.ModeratorBytesPerSec, MaxBytes: e.ModeratorMaxBytes},
	}
}

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}
		return e, nil
	}
}
