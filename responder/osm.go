package responder

import (
	"context"
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/output"
	"github.com/advdv/osmhttp/selection"
)

// OSMCurrent writes the elements in the working set of a selection as one osm document.
type OSMCurrent struct {
	base
	sel    selection.Selection
	bounds *osm.BBox
}

// NewOSMCurrent responds with the current selection. Bounds are written first when given.
func NewOSMCurrent(resourceType mime.Type, sel selection.Selection, bounds *osm.BBox) *OSMCurrent {
	return &OSMCurrent{base: base{resourceType: resourceType}, sel: sel, bounds: bounds}
}

func (r *OSMCurrent) TypesAvailable() []mime.Type { return osmTypes }

func (r *OSMCurrent) Write(ctx context.Context, f output.Formatter, generator string, _ time.Time) error {
	if err := f.StartDocument(generator, output.RootOSM); err != nil {
		return err
	}

	return finish(f, embed(f, r.writeBody(ctx, f)))
}

func (r *OSMCurrent) writeBody(ctx context.Context, f output.Formatter) error {
	if r.bounds != nil {
		if err := f.WriteBounds(*r.bounds); err != nil {
			return err
		}
	}

	for _, part := range []struct {
		typ   osm.ElementType
		write func(context.Context, output.Formatter) error
	}{
		{osm.TypeNode, r.sel.WriteNodes},
		{osm.TypeWay, r.sel.WriteWays},
		{osm.TypeRelation, r.sel.WriteRelations},
	} {
		if err := f.StartElementType(part.typ); err != nil {
			return err
		}
		if err := part.write(ctx, f); err != nil {
			return err
		}
		if err := f.EndElementType(part.typ); err != nil {
			return err
		}
	}

	return nil
}

// Changeset writes the selected changesets.
type Changeset struct {
	base
	sel   selection.ChangesetSelection
	multi bool
}

// NewChangeset responds with the selected changesets. Multi controls whether a list is rendered, even if it
// only has a single entry.
func NewChangeset(resourceType mime.Type, sel selection.ChangesetSelection, multi bool) *Changeset {
	return &Changeset{base: base{resourceType: resourceType}, sel: sel, multi: multi}
}

func (r *Changeset) TypesAvailable() []mime.Type { return osmTypes }

func (r *Changeset) Write(ctx context.Context, f output.Formatter, generator string, now time.Time) error {
	if err := f.StartDocument(generator, output.RootOSM); err != nil {
		return err
	}

	err := f.StartChangeset(r.multi)
	if err == nil {
		err = r.sel.WriteChangesets(ctx, f, now)
	}
	if err == nil {
		err = f.EndChangeset(r.multi)
	}

	return finish(f, embed(f, err))
}
