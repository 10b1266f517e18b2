package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/output"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Selection is the per-request working set over a [Store].
type Selection struct {
	s *Store

	nodes, ways, relations             map[int64]struct{}
	histNodes, histWays, histRelations map[osm.Edition]struct{}
	changesets                         map[int64]struct{}

	discussions       bool
	redactionsVisible bool
}

var (
	_ selection.HistorySelection   = (*Selection)(nil)
	_ selection.ChangesetSelection = (*Selection)(nil)
	_ selection.UserStore          = (*Selection)(nil)
)

func newSelection(s *Store) *Selection {
	return &Selection{
		s:             s,
		nodes:         map[int64]struct{}{},
		ways:          map[int64]struct{}{},
		relations:     map[int64]struct{}{},
		histNodes:     map[osm.Edition]struct{}{},
		histWays:      map[osm.Edition]struct{}{},
		histRelations: map[osm.Edition]struct{}{},
		changesets:    map[int64]struct{}{},
	}
}

// WriteNodes writes the current and historical nodes in the working set, ordered by id and version.
func (sel *Selection) WriteNodes(ctx context.Context, f output.Formatter) error {
	sel.s.mu.RLock()
	nodes := collect(sel.s.nodes, sel.nodes, sel.histNodes)
	sel.s.mu.RUnlock()

	for i := range nodes {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "write nodes")
		}
		if err := f.WriteNode(&nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteWays writes the current and historical ways in the working set, ordered by id and version.
func (sel *Selection) WriteWays(ctx context.Context, f output.Formatter) error {
	sel.s.mu.RLock()
	ways := collect(sel.s.ways, sel.ways, sel.histWays)
	sel.s.mu.RUnlock()

	for i := range ways {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "write ways")
		}
		if err := f.WriteWay(&ways[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteRelations writes the current and historical relations in the working set, ordered by id and version.
func (sel *Selection) WriteRelations(ctx context.Context, f output.Formatter) error {
	sel.s.mu.RLock()
	rels := collect(sel.s.relations, sel.relations, sel.histRelations)
	sel.s.mu.RUnlock()

	for i := range rels {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "write relations")
		}
		if err := f.WriteRelation(&rels[i]); err != nil {
			return err
		}
	}
	return nil
}

func (sel *Selection) CheckNodeVisibility(_ context.Context, id int64) (selection.Visibility, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return visibility(sel.s.nodes[id]), nil
}

func (sel *Selection) CheckWayVisibility(_ context.Context, id int64) (selection.Visibility, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return visibility(sel.s.ways[id]), nil
}

func (sel *Selection) CheckRelationVisibility(_ context.Context, id int64) (selection.Visibility, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return visibility(sel.s.relations[id]), nil
}

func (sel *Selection) SelectNodes(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectCurrent(sel.s.nodes, sel.nodes, ids), nil
}

func (sel *Selection) SelectWays(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectCurrent(sel.s.ways, sel.ways, ids), nil
}

func (sel *Selection) SelectRelations(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectCurrent(sel.s.relations, sel.relations, ids), nil
}

// SelectNodesFromBBox selects visible nodes inside b in id order, stopping after max+1.
func (sel *Selection) SelectNodesFromBBox(ctx context.Context, b osm.BBox, max int) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	ids := lo.Keys(sel.s.nodes)
	slices.Sort(ids)

	var found int
	for _, id := range ids {
		if found > max {
			break
		}

		n, ok := latest(sel.s.nodes[id])
		if !ok || !n.Visible || !b.Contains(n.Lon, n.Lat) {
			continue
		}

		sel.nodes[id] = struct{}{}
		found++
	}

	return found, errors.Wrap(ctx.Err(), "select nodes from bbox")
}

func (sel *Selection) SelectNodesFromRelations(context.Context) error {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	for id := range sel.relations {
		if r, ok := visibleLatest(sel.s.relations[id]); ok {
			addMembers(r, osm.TypeNode, sel.s.nodes, sel.nodes)
		}
	}
	return nil
}

func (sel *Selection) SelectWaysFromNodes(context.Context) error {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	for id, vs := range sel.s.ways {
		w, ok := visibleLatest(vs)
		if !ok {
			continue
		}
		if slices.ContainsFunc(w.Nodes, sel.hasNode) {
			sel.ways[id] = struct{}{}
		}
	}
	return nil
}

func (sel *Selection) SelectWaysFromRelations(context.Context) error {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	for id := range sel.relations {
		if r, ok := visibleLatest(sel.s.relations[id]); ok {
			addMembers(r, osm.TypeWay, sel.s.ways, sel.ways)
		}
	}
	return nil
}

func (sel *Selection) SelectRelationsFromWays(context.Context) error {
	return sel.selectRelationsReferencing(osm.TypeWay, sel.ways)
}

func (sel *Selection) SelectNodesFromWayNodes(context.Context) error {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	for id := range sel.ways {
		w, ok := visibleLatest(sel.s.ways[id])
		if !ok {
			continue
		}
		for _, ref := range w.Nodes {
			if _, ok := visibleLatest(sel.s.nodes[ref]); ok {
				sel.nodes[ref] = struct{}{}
			}
		}
	}
	return nil
}

func (sel *Selection) SelectRelationsFromNodes(context.Context) error {
	return sel.selectRelationsReferencing(osm.TypeNode, sel.nodes)
}

func (sel *Selection) SelectRelationsFromRelations(_ context.Context, dropSelected bool) error {
	children := sel.relations
	if dropSelected {
		sel.relations = map[int64]struct{}{}
	}
	return sel.selectRelationsReferencing(osm.TypeRelation, children)
}

func (sel *Selection) DropNodes(context.Context) error {
	clear(sel.nodes)
	return nil
}

func (sel *Selection) DropWays(context.Context) error {
	clear(sel.ways)
	return nil
}

func (sel *Selection) DropRelations(context.Context) error {
	clear(sel.relations)
	return nil
}

func (sel *Selection) SelectRelationsMembersOfRelations(context.Context) error {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	// collect first, the working set grows while we look at it
	var parents []osm.Relation
	for id := range sel.relations {
		if r, ok := visibleLatest(sel.s.relations[id]); ok {
			parents = append(parents, r)
		}
	}
	for _, r := range parents {
		addMembers(r, osm.TypeRelation, sel.s.relations, sel.relations)
	}
	return nil
}

func (sel *Selection) SelectHistoricalNodes(_ context.Context, eds []osm.Edition) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectEditions(sel.s.nodes, sel.histNodes, eds, sel.redactionsVisible), nil
}

func (sel *Selection) SelectHistoricalWays(_ context.Context, eds []osm.Edition) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectEditions(sel.s.ways, sel.histWays, eds, sel.redactionsVisible), nil
}

func (sel *Selection) SelectHistoricalRelations(_ context.Context, eds []osm.Edition) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectEditions(sel.s.relations, sel.histRelations, eds, sel.redactionsVisible), nil
}

func (sel *Selection) SelectNodesWithHistory(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectAllVersions(sel.s.nodes, sel.histNodes, ids, sel.redactionsVisible), nil
}

func (sel *Selection) SelectWaysWithHistory(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectAllVersions(sel.s.ways, sel.histWays, ids, sel.redactionsVisible), nil
}

func (sel *Selection) SelectRelationsWithHistory(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()
	return selectAllVersions(sel.s.relations, sel.histRelations, ids, sel.redactionsVisible), nil
}

// SelectHistoricalByChangesets selects every element version that was created in one of the changesets.
func (sel *Selection) SelectHistoricalByChangesets(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	in := lo.SliceToMap(ids, func(id int64) (int64, struct{}) { return id, struct{}{} })
	found := selectByChangeset(sel.s.nodes, sel.histNodes, in, sel.redactionsVisible)
	found += selectByChangeset(sel.s.ways, sel.histWays, in, sel.redactionsVisible)
	found += selectByChangeset(sel.s.relations, sel.histRelations, in, sel.redactionsVisible)
	return found, nil
}

// SetRedactionsVisible controls whether redacted versions can be selected. It must be called before selecting.
func (sel *Selection) SetRedactionsVisible(visible bool) { sel.redactionsVisible = visible }

func (sel *Selection) SelectChangesets(_ context.Context, ids []int64) (int, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	var found int
	for _, id := range ids {
		if _, ok := sel.s.changesets[id]; ok {
			sel.changesets[id] = struct{}{}
			found++
		}
	}
	return found, nil
}

func (sel *Selection) SelectChangesetDiscussions(context.Context) error {
	sel.discussions = true
	return nil
}

// WriteChangesets writes the selected changesets ordered by id.
func (sel *Selection) WriteChangesets(ctx context.Context, f output.Formatter, now time.Time) error {
	sel.s.mu.RLock()
	css := make([]osm.Changeset, 0, len(sel.changesets))
	for id := range sel.changesets {
		css = append(css, *sel.s.changesets[id])
	}
	sel.s.mu.RUnlock()

	slices.SortFunc(css, func(a, b osm.Changeset) int { return cmp.Compare(a.ID, b.ID) })
	for i := range css {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "write changesets")
		}
		if err := f.WriteChangeset(&css[i], sel.discussions, now); err != nil {
			return err
		}
	}
	return nil
}

func (sel *Selection) GetRolesForUser(_ context.Context, uid int64) ([]selection.Role, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	u, ok := sel.s.users[uid]
	if !ok {
		return nil, nil
	}
	return slices.Clone(u.Roles), nil
}

func (sel *Selection) IsUserBlocked(_ context.Context, uid int64) (bool, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	u, ok := sel.s.users[uid]
	return ok && u.Blocked, nil
}

// GetUserIDForOAuth2Token looks up the token under the exact key it is given.
func (sel *Selection) GetUserIDForOAuth2Token(_ context.Context, token string) (selection.TokenLookup, error) {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	t, ok := sel.s.tokens[token]
	if !ok {
		return selection.TokenLookup{}, nil
	}

	return selection.TokenLookup{
		UserID:     t.UserID,
		Found:      true,
		Expired:    !t.ExpiresAt.IsZero() && !sel.s.now().Before(t.ExpiresAt),
		Revoked:    t.Revoked,
		AllowWrite: t.AllowWrite,
	}, nil
}

func (sel *Selection) hasNode(id int64) bool {
	_, ok := sel.nodes[id]
	return ok
}

func (sel *Selection) selectRelationsReferencing(t osm.ElementType, set map[int64]struct{}) error {
	sel.s.mu.RLock()
	defer sel.s.mu.RUnlock()

	var add []int64
	for id, vs := range sel.s.relations {
		r, ok := visibleLatest(vs)
		if !ok {
			continue
		}
		if slices.ContainsFunc(r.Members, func(m osm.Member) bool {
			_, ok := set[m.Ref]
			return m.Type == t && ok
		}) {
			add = append(add, id)
		}
	}

	for _, id := range add {
		sel.relations[id] = struct{}{}
	}
	return nil
}

// versioned is implemented by the element types through their embedded info.
type versioned interface {
	osm.Node | osm.Way | osm.Relation
	Info() osm.ElementInfo
}

func visibleLatest[T versioned](vs []T) (T, bool) {
	v, ok := latest(vs)
	return v, ok && v.Info().Visible
}

func addMembers[T versioned](r osm.Relation, t osm.ElementType, all map[int64][]T, dst map[int64]struct{}) {
	for _, m := range r.Members {
		if m.Type != t {
			continue
		}
		if _, ok := visibleLatest(all[m.Ref]); ok {
			dst[m.Ref] = struct{}{}
		}
	}
}

func visibility[T versioned](vs []T) selection.Visibility {
	v, ok := latest(vs)
	switch {
	case !ok:
		return selection.NonExist
	case v.Info().Visible:
		return selection.Exists
	default:
		return selection.Deleted
	}
}

func selectCurrent[T versioned](all map[int64][]T, dst map[int64]struct{}, ids []int64) int {
	var found int
	for _, id := range ids {
		if len(all[id]) == 0 {
			continue
		}
		dst[id] = struct{}{}
		found++
	}
	return found
}

func selectEditions[T versioned](
	all map[int64][]T, dst map[osm.Edition]struct{}, eds []osm.Edition, redacted bool,
) int {
	var found int
	for _, ed := range eds {
		for _, v := range all[ed.ID] {
			vi := v.Info()
			if vi.Version != ed.Version || (vi.Redacted && !redacted) {
				continue
			}
			dst[ed] = struct{}{}
			found++
		}
	}
	return found
}

func selectAllVersions[T versioned](
	all map[int64][]T, dst map[osm.Edition]struct{}, ids []int64, redacted bool,
) int {
	var found int
	for _, id := range ids {
		for _, v := range all[id] {
			vi := v.Info()
			if vi.Redacted && !redacted {
				continue
			}
			dst[vi.Edition()] = struct{}{}
			found++
		}
	}
	return found
}

func selectByChangeset[T versioned](
	all map[int64][]T, dst map[osm.Edition]struct{}, in map[int64]struct{}, redacted bool,
) int {
	var found int
	for _, vs := range all {
		for _, v := range vs {
			vi := v.Info()
			if _, ok := in[vi.Changeset]; !ok || (vi.Redacted && !redacted) {
				continue
			}
			dst[vi.Edition()] = struct{}{}
			found++
		}
	}
	return found
}

// collect merges the current and the historical working sets into one list without duplicates.
func collect[T versioned](all map[int64][]T, current map[int64]struct{}, hist map[osm.Edition]struct{}) []T {
	seen := make(map[osm.Edition]struct{}, len(current)+len(hist))
	out := make([]T, 0, len(current)+len(hist))

	add := func(v T) {
		ed := v.Info().Edition()
		if _, ok := seen[ed]; ok {
			return
		}
		seen[ed] = struct{}{}
		out = append(out, v)
	}

	for id := range current {
		if v, ok := latest(all[id]); ok {
			add(v)
		}
	}
	for ed := range hist {
		for _, v := range all[ed.ID] {
			if v.Info().Version == ed.Version {
				add(v)
			}
		}
	}

	slices.SortFunc(out, func(a, b T) int {
		ai, bi := a.Info(), b.Info()
		return cmp.Or(cmp.Compare(ai.ID, bi.ID), cmp.Compare(ai.Version, bi.Version))
	})
	return out
}
