package responder

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/output"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
)

// OSMChange writes the working set as an osmChange document: every element version wrapped in the action
// that produced it, in the order the versions were created.
type OSMChange struct {
	base
	sel selection.Selection
}

// NewOSMChange inits the responder.
func NewOSMChange(resourceType mime.Type, sel selection.Selection) *OSMChange {
	return &OSMChange{base: base{resourceType: resourceType}, sel: sel}
}

// TypesAvailable only lists XML, osmChange has no JSON rendition.
func (r *OSMChange) TypesAvailable() []mime.Type { return []mime.Type{mime.ApplicationXML} }

func (r *OSMChange) Write(ctx context.Context, f output.Formatter, generator string, _ time.Time) error {
	if err := f.StartDocument(generator, output.RootOSMChange); err != nil {
		return err
	}

	sorter := &sortingFormatter{}
	err := r.sel.WriteNodes(ctx, sorter)
	if err == nil {
		err = r.sel.WriteWays(ctx, sorter)
	}
	if err == nil {
		err = r.sel.WriteRelations(ctx, sorter)
	}
	if err == nil {
		err = sorter.replay(f)
	}

	return finish(f, embed(f, err))
}

// errNotBuffered is returned by the sorting formatter for everything but element writes.
var errNotBuffered = errors.New("only elements can be written to the sorting formatter")

type change struct {
	typ  osm.ElementType
	node *osm.Node
	way  *osm.Way
	rel  *osm.Relation
}

func (c change) info() osm.ElementInfo {
	switch c.typ {
	case osm.TypeNode:
		return c.node.ElementInfo
	case osm.TypeWay:
		return c.way.ElementInfo
	default:
		return c.rel.ElementInfo
	}
}

// sortingFormatter buffers element writes so they can be replayed in order of creation.
type sortingFormatter struct {
	changes []change
}

func (s *sortingFormatter) WriteNode(n *osm.Node) error {
	cp := *n
	s.changes = append(s.changes, change{typ: osm.TypeNode, node: &cp})
	return nil
}

func (s *sortingFormatter) WriteWay(w *osm.Way) error {
	cp := *w
	s.changes = append(s.changes, change{typ: osm.TypeWay, way: &cp})
	return nil
}

func (s *sortingFormatter) WriteRelation(r *osm.Relation) error {
	cp := *r
	s.changes = append(s.changes, change{typ: osm.TypeRelation, rel: &cp})
	return nil
}

// replay sorts by timestamp, version, type and id and writes every change wrapped in its action.
func (s *sortingFormatter) replay(f output.Formatter) error {
	slices.SortStableFunc(s.changes, func(a, b change) int {
		ai, bi := a.info(), b.info()
		return cmp.Or(
			ai.Timestamp.Compare(bi.Timestamp),
			cmp.Compare(ai.Version, bi.Version),
			cmp.Compare(a.typ, b.typ),
			cmp.Compare(ai.ID, bi.ID),
		)
	})

	for _, c := range s.changes {
		action := osm.ActionOf(c.info())
		if err := f.StartAction(action); err != nil {
			return err
		}

		var err error
		switch c.typ {
		case osm.TypeNode:
			err = f.WriteNode(c.node)
		case osm.TypeWay:
			err = f.WriteWay(c.way)
		default:
			err = f.WriteRelation(c.rel)
		}
		if err != nil {
			return err
		}

		if err := f.EndAction(action); err != nil {
			return err
		}
	}

	return nil
}

func (s *sortingFormatter) MimeType() mime.Type                     { return mime.Unspecified }
func (s *sortingFormatter) StartDocument(string, output.Root) error { return errNotBuffered }
func (s *sortingFormatter) EndDocument() error                      { return errNotBuffered }
func (s *sortingFormatter) WriteBounds(osm.BBox) error              { return errNotBuffered }
func (s *sortingFormatter) StartElementType(osm.ElementType) error  { return errNotBuffered }
func (s *sortingFormatter) EndElementType(osm.ElementType) error    { return errNotBuffered }
func (s *sortingFormatter) StartAction(osm.Action) error            { return errNotBuffered }
func (s *sortingFormatter) EndAction(osm.Action) error              { return errNotBuffered }
func (s *sortingFormatter) StartChangeset(bool) error               { return errNotBuffered }
func (s *sortingFormatter) EndChangeset(bool) error                 { return errNotBuffered }
func (s *sortingFormatter) Error(string) error                      { return errNotBuffered }
func (s *sortingFormatter) Flush() error                            { return nil }

func (s *sortingFormatter) Close() {}

func (s *sortingFormatter) WriteChangeset(*osm.Changeset, bool, time.Time) error {
	return errNotBuffered
}

var _ output.Formatter = (*sortingFormatter)(nil)
