package api06

import (
	"context"
	"net/http"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/handler"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/responder"
	"github.com/advdv/osmhttp/selection"
)

// kind binds the selection methods of one element type.
type kind struct {
	typ     osm.ElementType
	check   func(selection.Selection, context.Context, int64) (selection.Visibility, error)
	sel     func(selection.Selection, context.Context, []int64) (int, error)
	hist    func(selection.HistorySelection, context.Context, []osm.Edition) (int, error)
	history func(selection.HistorySelection, context.Context, []int64) (int, error)
}

var (
	nodeKind = kind{
		typ:     osm.TypeNode,
		check:   selection.Selection.CheckNodeVisibility,
		sel:     selection.Selection.SelectNodes,
		hist:    selection.HistorySelection.SelectHistoricalNodes,
		history: selection.HistorySelection.SelectNodesWithHistory,
	}
	wayKind = kind{
		typ:     osm.TypeWay,
		check:   selection.Selection.CheckWayVisibility,
		sel:     selection.Selection.SelectWays,
		hist:    selection.HistorySelection.SelectHistoricalWays,
		history: selection.HistorySelection.SelectWaysWithHistory,
	}
	relationKind = kind{
		typ:     osm.TypeRelation,
		check:   selection.Selection.CheckRelationVisibility,
		sel:     selection.Selection.SelectRelations,
		hist:    selection.HistorySelection.SelectHistoricalRelations,
		history: selection.HistorySelection.SelectRelationsWithHistory,
	}
)

// checkVisible fails with 404 or 410 unless the element is visible.
func (k kind) checkVisible(ctx context.Context, sel selection.Selection, id int64) error {
	vis, err := k.check(sel, ctx, id)
	if err != nil {
		return err
	}

	switch vis {
	case selection.NonExist:
		return notFound()
	case selection.Deleted:
		return gone()
	default:
		return nil
	}
}

// readHandler carries what every read-only element handler shares.
type readHandler struct {
	kind kind
	id   int64
	mt   mime.Type
}

func (h readHandler) AllowedMethods() osmhttp.Method { return osmhttp.MethodsRead }

func (h readHandler) historySelection(sel selection.Selection) (selection.HistorySelection, error) {
	hs, ok := sel.(selection.HistorySelection)
	if !ok {
		return nil, unsupported("historical versions")
	}
	return hs, nil
}

// elementHandler responds with the current version of an element.
type elementHandler struct{ readHandler }

func (h elementHandler) LogName() string { return h.kind.typ.String() }

func (h elementHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	if err := h.kind.checkVisible(ctx, sel, h.id); err != nil {
		return nil, err
	}
	if _, err := h.kind.sel(sel, ctx, []int64{h.id}); err != nil {
		return nil, err
	}

	return responder.NewOSMCurrent(h.mt, sel, nil), nil
}

// versionHandler responds with one specific version of an element.
type versionHandler struct {
	readHandler
	version int64
}

func (h versionHandler) LogName() string { return h.kind.typ.String() + "/version" }

func (h versionHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	hs, err := h.historySelection(sel)
	if err != nil {
		return nil, err
	}

	n, err := h.kind.hist(hs, ctx, []osm.Edition{{ID: h.id, Version: h.version}})
	if err != nil {
		return nil, err
	} else if n == 0 {
		return nil, notFound()
	}

	return responder.NewOSMCurrent(h.mt, sel, nil), nil
}

// historyHandler responds with every version of an element.
type historyHandler struct{ readHandler }

func (h historyHandler) LogName() string { return h.kind.typ.String() + "/history" }

func (h historyHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	hs, err := h.historySelection(sel)
	if err != nil {
		return nil, err
	}

	n, err := h.kind.history(hs, ctx, []int64{h.id})
	if err != nil {
		return nil, err
	} else if n == 0 {
		return nil, notFound()
	}

	return responder.NewOSMCurrent(h.mt, sel, nil), nil
}

// fullHandler responds with a way or relation and everything it references.
type fullHandler struct{ readHandler }

func (h fullHandler) LogName() string { return h.kind.typ.String() + "/full" }

func (h fullHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	if err := h.kind.checkVisible(ctx, sel, h.id); err != nil {
		return nil, err
	}
	if _, err := h.kind.sel(sel, ctx, []int64{h.id}); err != nil {
		return nil, err
	}

	var steps []func(context.Context) error
	if h.kind.typ == osm.TypeWay {
		steps = append(steps, sel.SelectNodesFromWayNodes)
	} else {
		steps = append(steps,
			sel.SelectNodesFromRelations,
			sel.SelectWaysFromRelations,
			sel.SelectNodesFromWayNodes,
			sel.SelectRelationsMembersOfRelations)
	}

	for _, step := range steps {
		if err := step(ctx); err != nil {
			return nil, err
		}
	}

	return responder.NewOSMCurrent(h.mt, sel, nil), nil
}

// relationsHandler responds with the relations that have the element as a member. An element that doesn't
// exist, or was deleted, is in no relation.
type relationsHandler struct{ readHandler }

func (h relationsHandler) LogName() string { return h.kind.typ.String() + "/relations" }

func (h relationsHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	visible, err := h.selectVisible(ctx, sel)
	if err != nil {
		return nil, err
	}

	switch h.kind.typ {
	case osm.TypeNode:
		if visible {
			err = sel.SelectRelationsFromNodes(ctx)
		}
		if err == nil {
			err = sel.DropNodes(ctx)
		}
	case osm.TypeWay:
		if visible {
			err = sel.SelectRelationsFromWays(ctx)
		}
		if err == nil {
			err = sel.DropWays(ctx)
		}
	default:
		if visible {
			err = sel.SelectRelationsFromRelations(ctx, true)
		} else {
			err = sel.DropRelations(ctx)
		}
	}
	if err != nil {
		return nil, err
	}

	return responder.NewOSMCurrent(h.mt, sel, nil), nil
}

func (h readHandler) selectVisible(ctx context.Context, sel selection.Selection) (bool, error) {
	n, err := h.kind.sel(sel, ctx, []int64{h.id})
	if err != nil || n == 0 {
		return false, err
	}

	vis, err := h.kind.check(sel, ctx, h.id)
	return vis == selection.Exists, err
}

// nodeWaysHandler responds with the ways that use a node.
type nodeWaysHandler struct{ readHandler }

func (h nodeWaysHandler) LogName() string { return "node/ways" }

func (h nodeWaysHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	visible, err := h.selectVisible(ctx, sel)
	if err != nil {
		return nil, err
	}

	if visible {
		if err := sel.SelectWaysFromNodes(ctx); err != nil {
			return nil, err
		}
	}
	if err := sel.DropNodes(ctx); err != nil {
		return nil, err
	}

	return responder.NewOSMCurrent(h.mt, sel, nil), nil
}

// readConstructor builds a constructor for handlers that only need the element id from the path.
func readConstructor(k kind, build func(readHandler) handler.Handler) handler.Constructor {
	return func(r *http.Request) (handler.Handler, error) {
		id, mt, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		return build(readHandler{kind: k, id: id, mt: mt}), nil
	}
}

// formatConstructor builds a constructor for sub-resources of an element. The format is fixed by the route
// rather than by the id.
func formatConstructor(k kind, suffix string, build func(readHandler) handler.Handler) handler.Constructor {
	_, mt := trimFormat(suffix)
	return func(r *http.Request) (handler.Handler, error) {
		id, err := osm.ParseID(r.PathValue("id"))
		if err != nil {
			return nil, notFound()
		}
		return build(readHandler{kind: k, id: id, mt: mt}), nil
	}
}

func newVersionHandler(k kind) handler.Constructor {
	return func(r *http.Request) (handler.Handler, error) {
		id, err := osm.ParseID(r.PathValue("id"))
		if err != nil {
			return nil, notFound()
		}

		version, mt, err := pathID(r, "version")
		if err != nil {
			return nil, err
		}

		return versionHandler{readHandler: readHandler{kind: k, id: id, mt: mt}, version: version}, nil
	}
}
