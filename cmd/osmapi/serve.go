package main

import (
	"os"

	"github.com/advdv/osmhttp/osmapp"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// serveFlags maps flags onto the environment variables they override.
var serveFlags = map[string]string{
	"port":      "OSMAPI_PORT",
	"snapshot":  "OSMAPI_SNAPSHOT",
	"read-only": "OSMAPI_READ_ONLY",
	"redis-url": "OSMAPI_REDIS_URL",
	"log-level": "OSMAPI_LOG_LEVEL",
	"exporter":  "OSMAPI_OTEL_EXPORTER",
}

func init() {
	RootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8080, "port to listen on")
	flags.StringP("snapshot", "s", "", "snapshot to serve: a file, s3://bucket/key or an http(s) url")
	flags.Bool("read-only", false, "reject all writes")
	flags.String("redis-url", "", "keep rate limit buckets in this redis")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("exporter", "stdout", "trace exporter: stdout or none")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	Long: "Run the API server. Every OSMAPI_* environment variable is read, " +
		"flags that are set explicitly take precedence.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for flag, name := range serveFlags {
			f := cmd.Flags().Lookup(flag)
			if f == nil {
				continue
			}

			if _, set := os.LookupEnv(name); set && !f.Changed {
				continue
			}

			if err := os.Setenv(name, f.Value.String()); err != nil {
				return errors.Wrapf(err, "set %s", name)
			}
		}

		app := osmapp.NewApp[osmapp.BaseEnvironment]()
		if err := app.Err(); err != nil {
			return err
		}

		app.Run()
		return nil
	},
}
