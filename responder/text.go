package responder

import (
	"context"
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/output"
)

var textTypes = []mime.Type{mime.TextPlain}

// Text responds with a fixed piece of plain text.
type Text struct {
	base
	text string
}

// NewText inits a responder for the given text.
func NewText(text string) *Text { return &Text{text: text} }

func (r *Text) TypesAvailable() []mime.Type { return textTypes }

func (r *Text) Write(_ context.Context, f output.Formatter, _ string, _ time.Time) error {
	return f.Error(r.text)
}

// Empty responds without a body.
type Empty struct{ base }

// NewEmpty inits the responder.
func NewEmpty() *Empty { return &Empty{} }

func (r *Empty) TypesAvailable() []mime.Type { return textTypes }

func (r *Empty) Write(context.Context, output.Formatter, string, time.Time) error { return nil }
