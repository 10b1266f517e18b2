package output

import (
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
)

// TextFormatter ignores the model, only error messages reach the output.
type TextFormatter struct {
	w *TextWriter
}

// NewTextFormatter inits the formatter on top of w.
func NewTextFormatter(w *TextWriter) *TextFormatter { return &TextFormatter{w: w} }

func (f *TextFormatter) MimeType() mime.Type { return mime.TextPlain }

func (f *TextFormatter) StartDocument(string, Root) error                     { return f.w.Err() }
func (f *TextFormatter) EndDocument() error                                   { return f.w.Err() }
func (f *TextFormatter) WriteBounds(osm.BBox) error                           { return f.w.Err() }
func (f *TextFormatter) StartElementType(osm.ElementType) error               { return f.w.Err() }
func (f *TextFormatter) EndElementType(osm.ElementType) error                 { return f.w.Err() }
func (f *TextFormatter) StartAction(osm.Action) error                         { return f.w.Err() }
func (f *TextFormatter) EndAction(osm.Action) error                           { return f.w.Err() }
func (f *TextFormatter) StartChangeset(bool) error                            { return f.w.Err() }
func (f *TextFormatter) EndChangeset(bool) error                              { return f.w.Err() }
func (f *TextFormatter) WriteNode(*osm.Node) error                            { return f.w.Err() }
func (f *TextFormatter) WriteWay(*osm.Way) error                              { return f.w.Err() }
func (f *TextFormatter) WriteRelation(*osm.Relation) error                    { return f.w.Err() }
func (f *TextFormatter) WriteChangeset(*osm.Changeset, bool, time.Time) error { return f.w.Err() }

func (f *TextFormatter) Error(msg string) error {
	f.w.Text(msg)
	return f.w.Err()
}

func (f *TextFormatter) Flush() error { return f.w.Flush() }
func (f *TextFormatter) Close()       { f.w.Close() }

var _ Formatter = &TextFormatter{}
