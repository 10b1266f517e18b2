package api06

import (
	"github.com/advdv/osmhttp/handler"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
)

// Prefix is the path every route of the API is mounted under.
const Prefix = "/api/0.6/"

// Register adds the routes of the API to r.
func Register(r handler.Registrar, cfg Config) {
	for _, mt := range []struct {
		suffix string
		typ    mime.Type
	}{{"", mime.Unspecified}, {jsonSuffix, mime.ApplicationJSON}} {
		r.Handle(Prefix+"map"+mt.suffix, newMapHandler(cfg, mt.typ))
		r.Handle(Prefix+"nodes"+mt.suffix, newMultiHandler(nodeKind, mt.typ))
		r.Handle(Prefix+"ways"+mt.suffix, newMultiHandler(wayKind, mt.typ))
		r.Handle(Prefix+"relations"+mt.suffix, newMultiHandler(relationKind, mt.typ))
	}

	for _, k := range []kind{nodeKind, wayKind, relationKind} {
		base := Prefix + k.typ.String() + "/{id}"

		r.Handle(base, readConstructor(k, func(h readHandler) handler.Handler { return elementHandler{h} }))
		r.Handle(base+"/{version}", newVersionHandler(k))

		for _, suffix := range []string{"", jsonSuffix} {
			r.Handle(base+"/history"+suffix, formatConstructor(k, suffix,
				func(h readHandler) handler.Handler { return historyHandler{h} }))
			r.Handle(base+"/relations"+suffix, formatConstructor(k, suffix,
				func(h readHandler) handler.Handler { return relationsHandler{h} }))

			if k.typ == osm.TypeNode {
				r.Handle(base+"/ways"+suffix, formatConstructor(k, suffix,
					func(h readHandler) handler.Handler { return nodeWaysHandler{h} }))
			} else {
				r.Handle(base+"/full"+suffix, formatConstructor(k, suffix,
					func(h readHandler) handler.Handler { return fullHandler{h} }))
			}
		}
	}

	r.Handle(Prefix+"changeset/create", newCreateHandler)
	r.Handle(Prefix+"changeset/{id}", newChangesetHandler)
	r.Handle(Prefix+"changeset/{id}/download", newDownloadHandler)
	r.Handle(Prefix+"changeset/{id}/close", newCloseHandler)
}
