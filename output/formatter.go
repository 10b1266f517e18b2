// Package output streams documents in the formats the API produces. Writers emit the low-level tokens of
// one format, formatters map the geodata model onto those tokens.
package output

import (
	"time"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/cockroachdb/errors"
)

// Document metadata carried by every XML root element and JSON top-level object.
const (
	APIVersion  = "0.6"
	Copyright   = "OpenStreetMap and contributors"
	Attribution = "http://www.openstreetmap.org/copyright"
	License     = "http://opendatacommons.org/licenses/odbl/1-0/"
)

// Root names the kind of document.
type Root string

const (
	RootOSM       Root = "osm"
	RootOSMChange Root = "osmChange"
)

// Formatter maps the model onto one concrete output format.
type Formatter interface {
	MimeType() mime.Type

	StartDocument(generator string, root Root) error
	EndDocument() error
	WriteBounds(b osm.BBox) error

	StartElementType(t osm.ElementType) error
	EndElementType(t osm.ElementType) error
	StartAction(a osm.Action) error
	EndAction(a osm.Action) error
	StartChangeset(multi bool) error
	EndChangeset(multi bool) error

	WriteNode(n *osm.Node) error
	WriteWay(w *osm.Way) error
	WriteRelation(r *osm.Relation) error
	WriteChangeset(c *osm.Changeset, includeComments bool, now time.Time) error

	// Error embeds an error message at the current position of the document.
	Error(msg string) error
	Flush() error
	// Close ends all open structures and flushes, errors are swallowed.
	Close()
}

// New creates the formatter for the negotiated type.
func New(t mime.Type, out osmhttp.OutputBuffer) (Formatter, error) {
	switch t {
	case mime.ApplicationXML:
		return NewXMLFormatter(NewXMLWriter(out)), nil
	case mime.ApplicationJSON:
		return NewJSONFormatter(NewJSONWriter(out)), nil
	case mime.TextPlain:
		return NewTextFormatter(NewTextWriter(out)), nil
	default:
		return nil, errors.Newf("no formatter for media type %s", t)
	}
}
