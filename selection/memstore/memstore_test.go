package memstore_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/output"
	"github.com/advdv/osmhttp/selection"
	"github.com/advdv/osmhttp/selection/memstore"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshot = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <bounds minlat="0" minlon="0" maxlat="1" maxlon="1"/>
  <node id="1" version="1" changeset="10" timestamp="2024-01-01T00:00:00Z" user="alice" uid="7" lat="0.5" lon="0.5">
    <tag k="amenity" v="cafe"/>
  </node>
  <node id="2" version="1" changeset="10" timestamp="2024-01-01T00:00:00Z" user="alice" uid="7" lat="0.6" lon="0.6"/>
  <node id="2" version="2" changeset="11" timestamp="2024-01-02T00:00:00Z" user="alice" uid="7" lat="0.7" lon="0.7" redacted="true"/>
  <node id="2" version="3" changeset="11" timestamp="2024-01-03T00:00:00Z" user="alice" uid="7" lat="0.7" lon="0.7"/>
  <node id="3" version="1" changeset="10" timestamp="2024-01-01T00:00:00Z" user="alice" uid="7" lat="5" lon="5"/>
  <node id="4" version="1" changeset="10" timestamp="2024-01-01T00:00:00Z" user="alice" uid="7" lat="0.1" lon="0.1"/>
  <node id="4" version="2" changeset="11" timestamp="2024-01-02T00:00:00Z" user="alice" uid="7" visible="false"/>
  <way id="20" version="1" changeset="10" timestamp="2024-01-01T00:00:00Z" user="alice" uid="7">
    <nd ref="1"/>
    <nd ref="3"/>
    <tag k="highway" v="path"/>
  </way>
  <relation id="30" version="1" changeset="10" timestamp="2024-01-01T00:00:00Z" user="alice" uid="7">
    <member type="way" ref="20" role="outer"/>
    <member type="node" ref="2" role=""/>
  </relation>
  <relation id="31" version="1" changeset="11" timestamp="2024-01-02T00:00:00Z" user="alice" uid="7">
    <member type="relation" ref="30" role="sub"/>
  </relation>
  <changeset id="10" created_at="2024-01-01T00:00:00Z" closed_at="2024-01-01T01:00:00Z" user="alice" uid="7"
      min_lat="0" min_lon="0" max_lat="5" max_lon="5" changes_count="5">
    <tag k="comment" v="first"/>
    <discussion>
      <comment id="1" date="2024-01-01T02:00:00Z" uid="8" user="bob"><text>nice</text></comment>
    </discussion>
  </changeset>
  <changeset id="11" created_at="2024-01-02T00:00:00Z" user="alice" uid="7"/>
  <user id="7" display_name="alice"/>
  <user id="8" display_name="bob" roles="moderator administrator" blocked="true"/>
  <token key="secret" uid="7" allow_write="true"/>
  <token key="old" uid="7" expires_at="2024-01-01T00:00:00Z"/>
</osm>`

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, opts ...memstore.Option) *memstore.Store {
	t.Helper()
	s := memstore.New(append([]memstore.Option{memstore.WithClock(func() time.Time { return now })}, opts...)...)
	require.NoError(t, s.Decode(strings.NewReader(snapshot)))
	return s
}

func newSelection(t *testing.T, s *memstore.Store) *memstore.Selection {
	t.Helper()
	sel, err := s.MakeSelection(t.Context())
	require.NoError(t, err)
	return sel.(*memstore.Selection)
}

// recorder captures what is written to it, all other formatter methods are not expected to be called.
type recorder struct {
	output.Formatter
	written  []string
	comments []int
}

func (r *recorder) WriteNode(n *osm.Node) error {
	r.written = append(r.written, "n"+n.Edition().String())
	return nil
}

func (r *recorder) WriteWay(w *osm.Way) error {
	r.written = append(r.written, "w"+w.Edition().String())
	return nil
}

func (r *recorder) WriteRelation(rel *osm.Relation) error {
	r.written = append(r.written, "r"+rel.Edition().String())
	return nil
}

func (r *recorder) WriteChangeset(c *osm.Changeset, includeComments bool, _ time.Time) error {
	r.written = append(r.written, "c"+osm.Edition{ID: c.ID}.String())
	if includeComments {
		r.comments = append(r.comments, len(c.Comments))
	}
	return nil
}

func writeAll(t *testing.T, sel selection.Selection) []string {
	t.Helper()
	rec := &recorder{}
	require.NoError(t, sel.WriteNodes(t.Context(), rec))
	require.NoError(t, sel.WriteWays(t.Context(), rec))
	require.NoError(t, sel.WriteRelations(t.Context(), rec))
	return rec.written
}

func TestDecodeStats(t *testing.T) {
	st := newStore(t).Stats()
	assert.Equal(t, memstore.Stats{
		Nodes: 4, NodeVersions: 7, Ways: 1, WayVersions: 1, Relations: 2, RelationVersions: 2,
		Changesets: 2, Users: 2,
	}, st)
}

func TestDecodeInvalid(t *testing.T) {
	s := memstore.New()
	err := s.Decode(strings.NewReader(`<osm><node id="1" version="0"/></osm>`))
	require.ErrorIs(t, err, memstore.ErrSnapshot)

	err = s.Decode(strings.NewReader(`<osm><relation id="1" version="1"><member type="area" ref="1"/></relation></osm>`))
	require.ErrorIs(t, err, memstore.ErrSnapshot)
}

func TestVisibility(t *testing.T) {
	sel := newSelection(t, newStore(t))
	ctx := t.Context()

	for _, tt := range []struct {
		id  int64
		exp selection.Visibility
	}{{1, selection.Exists}, {4, selection.Deleted}, {99, selection.NonExist}} {
		v, err := sel.CheckNodeVisibility(ctx, tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.exp, v, "node %d", tt.id)
	}

	v, err := sel.CheckWayVisibility(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, selection.Exists, v)

	v, err = sel.CheckRelationVisibility(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, selection.NonExist, v)
}

func TestSelectCurrentIncludesDeleted(t *testing.T) {
	sel := newSelection(t, newStore(t))

	n, err := sel.SelectNodes(t.Context(), []int64{4, 2, 99})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"n2v3", "n4v2"}, writeAll(t, sel))
}

func TestSelectFromBBoxAndExpand(t *testing.T) {
	sel := newSelection(t, newStore(t))
	ctx := t.Context()

	n, err := sel.SelectNodesFromBBox(ctx, osm.BBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}, 10)
	require.NoError(t, err)
	require.Equal(t, 2, n) // node 4 is deleted, node 3 is outside

	require.NoError(t, sel.SelectWaysFromNodes(ctx))
	require.NoError(t, sel.SelectNodesFromWayNodes(ctx))
	require.NoError(t, sel.SelectRelationsFromWays(ctx))
	require.NoError(t, sel.SelectRelationsFromNodes(ctx))
	require.NoError(t, sel.SelectRelationsFromRelations(ctx, false))

	require.Equal(t, []string{"n1v1", "n2v3", "n3v1", "w20v1", "r30v1", "r31v1"}, writeAll(t, sel))
}

func TestSelectFromBBoxStopsAfterMax(t *testing.T) {
	sel := newSelection(t, newStore(t))

	n, err := sel.SelectNodesFromBBox(t.Context(), osm.BBox{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}, 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRelationFull(t *testing.T) {
	sel := newSelection(t, newStore(t))
	ctx := t.Context()

	_, err := sel.SelectRelations(ctx, []int64{31})
	require.NoError(t, err)
	require.NoError(t, sel.SelectRelationsMembersOfRelations(ctx))
	require.NoError(t, sel.SelectWaysFromRelations(ctx))
	require.NoError(t, sel.SelectNodesFromRelations(ctx))

	require.Equal(t, []string{"n2v3", "w20v1", "r30v1", "r31v1"}, writeAll(t, sel))
}

func TestParentsOnly(t *testing.T) {
	sel := newSelection(t, newStore(t))
	ctx := t.Context()

	_, err := sel.SelectRelations(ctx, []int64{30})
	require.NoError(t, err)
	require.NoError(t, sel.SelectRelationsFromRelations(ctx, true))
	require.Equal(t, []string{"r31v1"}, writeAll(t, sel))

	_, err = sel.SelectNodes(ctx, []int64{1})
	require.NoError(t, err)
	require.NoError(t, sel.SelectWaysFromNodes(ctx))
	require.NoError(t, sel.DropNodes(ctx))
	require.Equal(t, []string{"w20v1", "r31v1"}, writeAll(t, sel))

	require.NoError(t, sel.DropWays(ctx))
	require.Equal(t, []string{"r31v1"}, writeAll(t, sel))
}

func TestHistoryHidesRedactions(t *testing.T) {
	for _, tt := range []struct {
		visible bool
		exp     []string
	}{
		{false, []string{"n2v1", "n2v3"}},
		{true, []string{"n2v1", "n2v2", "n2v3"}},
	} {
		sel := newSelection(t, newStore(t))
		sel.SetRedactionsVisible(tt.visible)

		n, err := sel.SelectNodesWithHistory(t.Context(), []int64{2})
		require.NoError(t, err)
		require.Equal(t, len(tt.exp), n)
		require.Equal(t, tt.exp, writeAll(t, sel))
	}
}

func TestHistoricalEditionsMergeWithCurrent(t *testing.T) {
	sel := newSelection(t, newStore(t))
	ctx := t.Context()

	_, err := sel.SelectNodes(ctx, []int64{2})
	require.NoError(t, err)

	n, err := sel.SelectHistoricalNodes(ctx, []osm.Edition{{ID: 2, Version: 1}, {ID: 2, Version: 3}, {ID: 2, Version: 2}})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"n2v1", "n2v3"}, writeAll(t, sel))
}

func TestSelectHistoricalByChangesets(t *testing.T) {
	sel := newSelection(t, newStore(t))

	n, err := sel.SelectHistoricalByChangesets(t.Context(), []int64{11})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"n2v3", "n4v2", "r31v1"}, writeAll(t, sel))
}

func TestChangesets(t *testing.T) {
	sel := newSelection(t, newStore(t))
	ctx := t.Context()

	n, err := sel.SelectChangesets(ctx, []int64{11, 10, 12})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, sel.SelectChangesetDiscussions(ctx))

	rec := &recorder{}
	require.NoError(t, sel.WriteChangesets(ctx, rec, now))
	require.Equal(t, []string{"c10", "c11"}, rec.written)
	require.Equal(t, []int{1, 0}, rec.comments)
}

func TestUsersAndTokens(t *testing.T) {
	sel := newSelection(t, newStore(t))
	ctx := t.Context()

	roles, err := sel.GetRolesForUser(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, []selection.Role{selection.RoleModerator, selection.RoleAdministrator}, roles)

	blocked, err := sel.IsUserBlocked(ctx, 8)
	require.NoError(t, err)
	require.True(t, blocked)

	blocked, err = sel.IsUserBlocked(ctx, 7)
	require.NoError(t, err)
	require.False(t, blocked)

	tl, err := sel.GetUserIDForOAuth2Token(ctx, "secret")
	require.NoError(t, err)
	require.Equal(t, selection.TokenLookup{UserID: 7, Found: true, AllowWrite: true}, tl)

	tl, err = sel.GetUserIDForOAuth2Token(ctx, "old")
	require.NoError(t, err)
	require.True(t, tl.Expired)

	tl, err = sel.GetUserIDForOAuth2Token(ctx, "nope")
	require.NoError(t, err)
	require.False(t, tl.Found)

	blocked, err = newStore(t).Users().IsUserBlocked(ctx, 8)
	require.NoError(t, err)
	require.True(t, blocked)
}

func TestUpdateLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	upd, err := s.MakeUpdate(ctx)
	require.NoError(t, err)
	require.False(t, upd.IsReadOnly())

	id, err := upd.CreateChangeset(ctx, 7, osm.Tags{"comment": "hello"})
	require.NoError(t, err)
	require.Equal(t, int64(12), id)

	// not visible before commit
	sel := newSelection(t, s)
	n, err := sel.SelectChangesets(ctx, []int64{id})
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, upd.Commit(ctx))
	require.ErrorIs(t, upd.Commit(ctx), memstore.ErrTxDone)

	upd, err = s.MakeUpdate(ctx)
	require.NoError(t, err)

	err = upd.UpdateChangeset(ctx, id, 8, osm.Tags{})
	require.Equal(t, osmhttp.CodeConflict, osmhttp.CodeOf(err))
	require.ErrorContains(t, err, "The user doesn't own that changeset")

	err = upd.CloseChangeset(ctx, 99, 7)
	require.Equal(t, osmhttp.CodeNotFound, osmhttp.CodeOf(err))

	require.NoError(t, upd.CloseChangeset(ctx, id, 7))
	err = upd.UpdateChangeset(ctx, id, 7, osm.Tags{})
	require.Equal(t, osmhttp.CodeConflict, osmhttp.CodeOf(err))
	require.ErrorContains(t, err, "The changeset 12 was closed at 2024-06-01T12:00:00Z")
	require.NoError(t, upd.Commit(ctx))
}

func TestUpdateRollback(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	upd, err := s.MakeUpdate(ctx)
	require.NoError(t, err)
	require.NoError(t, upd.UpdateChangeset(ctx, 11, 7, osm.Tags{"comment": "changed"}))
	require.NoError(t, upd.Rollback(ctx))
	require.NoError(t, upd.Rollback(ctx))

	sel := newSelection(t, s)
	_, err = sel.SelectChangesets(ctx, []int64{11})
	require.NoError(t, err)

	var got *osm.Changeset
	rec := &changesetCapture{fn: func(c *osm.Changeset) { got = c }}
	require.NoError(t, sel.WriteChangesets(ctx, rec, now))
	require.Empty(t, got.Tags)
}

func TestUpdateReadOnly(t *testing.T) {
	s := newStore(t, memstore.WithReadOnly(true))
	ctx := t.Context()

	upd, err := s.MakeUpdate(ctx)
	require.NoError(t, err)
	require.True(t, upd.IsReadOnly())

	_, err = upd.CreateChangeset(ctx, 7, nil)
	require.Equal(t, osmhttp.CodeBadRequest, osmhttp.CodeOf(err))
}

type changesetCapture struct {
	output.Formatter
	fn func(c *osm.Changeset)
}

func (c *changesetCapture) WriteChangeset(cs *osm.Changeset, _ bool, _ time.Time) error {
	c.fn(cs)
	return nil
}

func TestLoadGzipFile(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(snapshot))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "snapshot.osm.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	s := memstore.New()
	require.NoError(t, s.Load(t.Context(), path, nil))
	require.Equal(t, 4, s.Stats().Nodes)
}

type fakeS3 struct{ bucket, key string }

func (f *fakeS3) GetObject(
	_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = aws.ToString(in.Bucket), aws.ToString(in.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(snapshot))}, nil
}

func TestLoadS3(t *testing.T) {
	getter := &fakeS3{}
	s := memstore.New()
	require.NoError(t, s.Load(t.Context(), "s3://planet/extracts/test.osm", getter))
	require.Equal(t, "planet", getter.bucket)
	require.Equal(t, "extracts/test.osm", getter.key)
	require.Equal(t, 2, s.Stats().Changesets)

	require.Error(t, s.Load(t.Context(), "s3://planet", getter))
	require.Error(t, s.Load(t.Context(), "s3://planet/x.osm", nil))
}
