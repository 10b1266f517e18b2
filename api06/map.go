package api06

import (
	"context"
	"fmt"
	"net/http"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/handler"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/responder"
	"github.com/advdv/osmhttp/selection"
)

// mapHandler responds with everything needed to render and edit an area.
type mapHandler struct {
	bounds   osm.BBox
	maxNodes int
	mt       mime.Type
}

func (h mapHandler) LogName() string {
	return fmt.Sprintf("map(%g,%g,%g,%g)", h.bounds.MinLon, h.bounds.MinLat, h.bounds.MaxLon, h.bounds.MaxLat)
}

func (h mapHandler) AllowedMethods() osmhttp.Method { return osmhttp.MethodsRead }

func (h mapHandler) Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error) {
	n, err := sel.SelectNodesFromBBox(ctx, h.bounds, h.maxNodes)
	if err != nil {
		return nil, err
	}

	if n > h.maxNodes {
		return nil, osmhttp.NewErrorf(osmhttp.CodeBadRequest,
			"You requested too many nodes (limit is %d). Either request a smaller area, or use planet.osm", h.maxNodes)
	}

	if n > 0 {
		for _, step := range []func(context.Context) error{
			sel.SelectWaysFromNodes,
			sel.SelectNodesFromWayNodes,
			sel.SelectRelationsFromWays,
			sel.SelectRelationsFromNodes,
			func(ctx context.Context) error { return sel.SelectRelationsFromRelations(ctx, false) },
		} {
			if err := step(ctx); err != nil {
				return nil, err
			}
		}
	}

	resp := responder.NewOSMCurrent(h.mt, sel, &h.bounds)
	resp.AddHeader("Content-Disposition", `attachment; filename="map.osm"`)
	return resp, nil
}

func newMapHandler(cfg Config, mt mime.Type) handler.Constructor {
	return func(r *http.Request) (handler.Handler, error) {
		bounds, err := osm.ParseBBox(r.URL.Query().Get("bbox"))
		if err != nil {
			return nil, osmhttp.NewErrorf(osmhttp.CodeBadRequest,
				"The parameter bbox is required, and must be of the form min_lon,min_lat,max_lon,max_lat.")
		}

		if !bounds.Valid() {
			return nil, osmhttp.NewErrorf(osmhttp.CodeBadRequest,
				"The latitudes must be between -90 and 90, longitudes between -180 and 180 and the "+
					"minima must be less than the maxima.")
		}

		if bounds.Area() > cfg.MaxArea {
			return nil, osmhttp.NewErrorf(osmhttp.CodeBadRequest,
				"The maximum bbox size is %g, and your request was too large. Either request a smaller area, "+
					"or use planet.osm", cfg.MaxArea)
		}

		return mapHandler{bounds: bounds, maxNodes: cfg.MaxNodes, mt: mt}, nil
	}
}
