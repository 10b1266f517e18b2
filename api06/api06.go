// Package api06 implements the endpoints of version 0.6 of the OSM editing API on top of the selection
// capabilities.
package api06

import (
	"net/http"
	"strings"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/cockroachdb/errors"
)

// Config limits what a single request may ask for.
type Config struct {
	// MaxArea is the largest bbox for map calls, in square degrees.
	MaxArea float64
	// MaxNodes is the most nodes a map call may return.
	MaxNodes int
}

// DefaultConfig returns the limits of the public API.
func DefaultConfig() Config {
	return Config{MaxArea: 0.25, MaxNodes: 50000}
}

const jsonSuffix = ".json"

// trimFormat strips the ".json" suffix. It returns the type it fixes, or [mime.Unspecified].
func trimFormat(s string) (string, mime.Type) {
	if trimmed, ok := strings.CutSuffix(s, jsonSuffix); ok {
		return trimmed, mime.ApplicationJSON
	}
	return s, mime.Unspecified
}

// pathID parses the named path value as an id. The value may carry a format suffix when it ends the path.
// Anything that is not an id doesn't route.
func pathID(r *http.Request, name string) (int64, mime.Type, error) {
	raw, mt := trimFormat(r.PathValue(name))

	id, err := osm.ParseID(raw)
	if err != nil {
		return 0, mt, osmhttp.NewError(osmhttp.CodeNotFound, errors.Wrapf(err, "path value %s", name))
	}

	return id, mt, nil
}

// notFound is the error for a missing resource, not found responses carry no message.
func notFound() error { return osmhttp.NewErrorf(osmhttp.CodeNotFound, "") }

func gone() error { return osmhttp.NewErrorf(osmhttp.CodeGone, "") }

func unsupported(what string) error {
	return osmhttp.NewErrorf(osmhttp.CodeInternalServerError, "Data source does not support %s.", what)
}
