package api06

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/handler"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/responder"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
)

// maxTagLength is the most unicode characters in a tag key or value.
const maxTagLength = 255

// changesetHandler reads a changeset, and updates its tags on PUT.
type changesetHandler struct {
	id                int64
	includeDiscussion bool
	mt                mime.Type
}

func (h changesetHandler) LogName() string { return "changeset" }

func (h changesetHandler) AllowedMethods() osmhttp.Method {
	return osmhttp.MethodsRead | osmhttp.MethodPut
}

func (h changesetHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	cs, ok := sel.(selection.ChangesetSelection)
	if !ok {
		return nil, unsupported("changesets")
	}

	n, err := cs.SelectChangesets(ctx, []int64{h.id})
	if err != nil {
		return nil, err
	} else if n == 0 {
		return nil, notFound()
	}

	if h.includeDiscussion {
		if err := cs.SelectChangesetDiscussions(ctx); err != nil {
			return nil, err
		}
	}

	return responder.NewChangeset(h.mt, cs, false), nil
}

func (h changesetHandler) PayloadResponder(
	ctx context.Context, upd selection.Update, payload []byte,
) (responder.Responder, error) {
	tags, err := ParseChangesetPayload(payload)
	if err != nil {
		return nil, err
	}

	if err := upd.UpdateChangeset(ctx, h.id, handler.IdentityFrom(ctx).UserID, tags); err != nil {
		return nil, err
	}

	return nil, upd.Commit(ctx)
}

func (h changesetHandler) RequiresSelectionAfterUpdate() bool { return true }

// downloadHandler responds with the changes made in a changeset.
type downloadHandler struct {
	id int64
	mt mime.Type
}

func (h downloadHandler) LogName() string                { return "changeset/download" }
func (h downloadHandler) AllowedMethods() osmhttp.Method { return osmhttp.MethodsRead }

func (h downloadHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	cs, ok := sel.(selection.ChangesetSelection)
	if !ok {
		return nil, unsupported("changesets")
	}

	hs, ok := sel.(selection.HistorySelection)
	if !ok {
		return nil, unsupported("historical versions")
	}

	n, err := cs.SelectChangesets(ctx, []int64{h.id})
	if err != nil {
		return nil, err
	} else if n == 0 {
		return nil, osmhttp.NewErrorf(osmhttp.CodeNotFound, "Changeset %d was not found.", h.id)
	}

	if _, err := hs.SelectHistoricalByChangesets(ctx, []int64{h.id}); err != nil {
		return nil, err
	}

	return responder.NewOSMChange(h.mt, sel), nil
}

// payloadOnly is embedded by handlers that can't respond to reads.
type payloadOnly struct{}

func (payloadOnly) AllowedMethods() osmhttp.Method { return osmhttp.MethodPut | osmhttp.MethodOptions }

func (payloadOnly) Responder(context.Context, selection.Selection) (responder.Responder, error) {
	return nil, osmhttp.NewErrorf(osmhttp.CodeInternalServerError, "Reading is not supported by this endpoint.")
}

func (payloadOnly) RequiresSelectionAfterUpdate() bool { return false }

// createHandler opens a new changeset and responds with its id.
type createHandler struct{ payloadOnly }

func (createHandler) LogName() string { return "changeset/create" }

func (createHandler) PayloadResponder(
	ctx context.Context, upd selection.Update, payload []byte,
) (responder.Responder, error) {
	tags, err := ParseChangesetPayload(payload)
	if err != nil {
		return nil, err
	}

	id, err := upd.CreateChangeset(ctx, handler.IdentityFrom(ctx).UserID, tags)
	if err != nil {
		return nil, err
	}

	if err := upd.Commit(ctx); err != nil {
		return nil, err
	}

	return responder.NewText(strconv.FormatInt(id, 10)), nil
}

// closeHandler closes a changeset, the response is empty.
type closeHandler struct {
	payloadOnly
	id int64
}

func (h closeHandler) LogName() string { return "changeset/close " + strconv.FormatInt(h.id, 10) }

func (h closeHandler) PayloadResponder(
	ctx context.Context, upd selection.Update, _ []byte,
) (responder.Responder, error) {
	if err := upd.CloseChangeset(ctx, h.id, handler.IdentityFrom(ctx).UserID); err != nil {
		return nil, err
	}

	if err := upd.Commit(ctx); err != nil {
		return nil, err
	}

	return responder.NewEmpty(), nil
}

func newChangesetHandler(r *http.Request) (handler.Handler, error) {
	id, mt, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	_, include := r.URL.Query()["include_discussion"]
	return changesetHandler{id: id, includeDiscussion: include, mt: mt}, nil
}

func newDownloadHandler(r *http.Request) (handler.Handler, error) {
	id, _, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return downloadHandler{id: id}, nil
}

func newCreateHandler(*http.Request) (handler.Handler, error) { return createHandler{}, nil }

func newCloseHandler(r *http.Request) (handler.Handler, error) {
	id, _, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return closeHandler{id: id}, nil
}

type payloadTag struct {
	K *string `xml:"k,attr"`
	V *string `xml:"v,attr"`
}

// ParseChangesetPayload reads the tags of the changeset in an osm document with exactly one changeset element.
func ParseChangesetPayload(payload []byte) (osm.Tags, error) {
	dec := xml.NewDecoder(bytes.NewReader(payload))

	var (
		depth int
		found bool
		tags  = osm.Tags{}
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, payloadError("XML Error: %s", err.Error())
		}

		switch t := tok.(type) {
		case xml.Directive:
			return nil, payloadError("XML external entities not supported")
		case xml.EndElement:
			depth--
		case xml.StartElement:
			depth++

			switch {
			case depth == 1 && t.Name.Local != "osm":
				return nil, payloadError("Unknown top-level element, expecting osm")
			case depth == 2 && t.Name.Local != "changeset":
				return nil, payloadError("Unknown element, expecting changeset")
			case depth == 2:
				found = true
			case depth == 3 && t.Name.Local != "tag":
				return nil, payloadError("Unknown element, expecting tag")
			case depth == 3:
				var tag payloadTag
				if err := dec.DecodeElement(&tag, &t); err != nil {
					return nil, payloadError("XML Error: %s", err.Error())
				}
				depth--

				if err := addTag(tags, tag); err != nil {
					return nil, err
				}
			}
		}
	}

	if !found {
		return nil, payloadError(
			"Cannot parse valid changeset from xml string. XML doesn't contain an osm/changeset element.")
	}

	return tags, nil
}

func addTag(tags osm.Tags, tag payloadTag) error {
	switch {
	case tag.K == nil:
		return payloadError("Mandatory field k missing in tag element")
	case tag.V == nil:
		return payloadError("Mandatory field v missing in tag element")
	case *tag.K == "":
		return payloadError("Key may not be empty")
	case utf8.RuneCountInString(*tag.K) > maxTagLength:
		return payloadError("Key has more than 255 unicode characters")
	case utf8.RuneCountInString(*tag.V) > maxTagLength:
		return payloadError("Value has more than 255 unicode characters")
	}

	tags[*tag.K] = *tag.V
	return nil
}

func payloadError(format string, args ...any) error {
	return osmhttp.NewErrorf(osmhttp.CodeBadRequest, format, args...)
}
