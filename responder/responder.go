// Package responder decides what is written for a resource once the request was validated. Each responder
// brackets its output in a complete document, errors from the data layer are embedded in that document.
package responder

import (
	"context"
	"net/http"
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/output"
	"github.com/cockroachdb/errors"
)

// Responder writes the body of one response.
type Responder interface {
	mime.Offer

	// ExtraHeaders are added to successful responses.
	ExtraHeaders() http.Header
	// Write streams the complete document. Only errors from the output layer are returned, every other
	// error is embedded into the document.
	Write(ctx context.Context, f output.Formatter, generator string, now time.Time) error
}

// base holds what all responders share.
type base struct {
	resourceType mime.Type
	headers      http.Header
}

func (b *base) ResourceType() mime.Type { return b.resourceType }

// ExtraHeaders returns the headers added through AddHeader.
func (b *base) ExtraHeaders() http.Header { return b.headers }

// AddHeader adds a header that is sent with a successful response.
func (b *base) AddHeader(key, value string) {
	if b.headers == nil {
		b.headers = http.Header{}
	}
	b.headers.Add(key, value)
}

// osmTypes are the formats of documents with geodata.
var osmTypes = []mime.Type{mime.ApplicationXML, mime.ApplicationJSON}

// embed reports err into the document unless it came from the output layer itself, in that case the
// client is gone and writing more is pointless.
func embed(f output.Formatter, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, output.ErrWrite) {
		return err
	}
	return f.Error(err.Error())
}

// finish ends the document, a write error from the body takes precedence.
func finish(f output.Formatter, err error) error {
	return errors.CombineErrors(err, f.EndDocument())
}
