package api06

import (
	"context"
	"net/http"
	"strings"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/handler"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/responder"
	"github.com/advdv/osmhttp/selection"
	"github.com/samber/lo"
)

// multiHandler responds with several elements of one type, each either current or at a given version.
type multiHandler struct {
	kind kind
	eds  []osm.Edition
	mt   mime.Type
}

func (h multiHandler) param() string { return h.kind.typ.String() + "s" }

func (h multiHandler) LogName() string {
	return h.param() + "?" + h.param() + "=" + strings.Join(lo.Map(h.eds, func(ed osm.Edition, _ int) string {
		return ed.String()
	}), ",")
}

func (h multiHandler) AllowedMethods() osmhttp.Method { return osmhttp.MethodsRead }

func (h multiHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	versioned, current := lo.FilterReject(h.eds, func(ed osm.Edition, _ int) bool { return ed.HasVersion() })

	found, err := h.kind.sel(sel, ctx, lo.Map(current, func(ed osm.Edition, _ int) int64 { return ed.ID }))
	if err != nil {
		return nil, err
	}

	if len(versioned) > 0 {
		hs, ok := sel.(selection.HistorySelection)
		if !ok {
			return nil, unsupported("historical versions")
		}

		n, err := h.kind.hist(hs, ctx, versioned)
		if err != nil {
			return nil, err
		}
		found += n
	}

	if found != len(h.eds) {
		return nil, osmhttp.NewErrorf(osmhttp.CodeNotFound, "One or more of the %s were not found.", h.param())
	}

	return responder.NewOSMCurrent(h.mt, sel, nil), nil
}

func newMultiHandler(k kind, mt mime.Type) handler.Constructor {
	return func(r *http.Request) (handler.Handler, error) {
		h := multiHandler{kind: k, mt: mt}

		eds, err := osm.ParseIDList(r.URL.Query().Get(h.param()))
		if err != nil {
			return nil, osmhttp.NewErrorf(osmhttp.CodeBadRequest,
				"The parameter %[1]s is required, and must be of the form %[1]s=ID[vVER][,ID[vVER][,...]].", h.param())
		}

		h.eds = eds
		return h, nil
	}
}
