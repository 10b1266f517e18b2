package output_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/output"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// memBuffer collects output in memory and can be told to fail.
type memBuffer struct {
	bytes.Buffer
	fail    bool
	flushes int
	closed  bool
}

func (b *memBuffer) Write(p []byte) (int, error) {
	if b.fail {
		return 0, errors.New("connection reset by peer")
	}
	return b.Buffer.Write(p)
}

func (b *memBuffer) Written() int64 { return int64(b.Len()) }
func (b *memBuffer) Flush() error   { b.flushes++; return nil }
func (b *memBuffer) Close() error   { b.closed = true; return nil }

var ts = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func testNode(tags osm.Tags) *osm.Node {
	return &osm.Node{
		ElementInfo: osm.ElementInfo{
			ID: 1, Version: 2, Changeset: 3, Timestamp: ts, Visible: true,
			Author: &osm.User{ID: 4, DisplayName: "mapper"},
		},
		Lon: 0.1, Lat: 51.5,
		Tags: tags,
	}
}

func render(t *testing.T, mt mime.Type, fn func(f output.Formatter)) string {
	t.Helper()

	var buf memBuffer
	f, err := output.New(mt, &buf)
	require.NoError(t, err)
	require.Equal(t, mt, f.MimeType())

	require.NoError(t, f.StartDocument("test 1.0", output.RootOSM))
	fn(f)
	require.NoError(t, f.EndDocument())
	f.Close()

	return buf.String()
}

func TestXMLNodeDocument(t *testing.T) {
	out := render(t, mime.ApplicationXML, func(f output.Formatter) {
		require.NoError(t, f.WriteBounds(osm.BBox{MinLat: 51, MinLon: -1, MaxLat: 52, MaxLon: 1}))
		require.NoError(t, f.StartElementType(osm.TypeNode))
		require.NoError(t, f.WriteNode(testNode(osm.Tags{"b": "2", "a": "1 & <x>"})))
		require.NoError(t, f.EndElementType(osm.TypeNode))
	})

	require.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test 1.0" copyright="OpenStreetMap and contributors" attribution="http://www.openstreetmap.org/copyright" license="http://opendatacommons.org/licenses/odbl/1-0/">
  <bounds minlat="51.0000000" minlon="-1.0000000" maxlat="52.0000000" maxlon="1.0000000"/>
  <node id="1" visible="true" version="2" changeset="3" timestamp="2024-05-06T07:08:09Z" user="mapper" uid="4" lat="51.5000000" lon="0.1000000">
    <tag k="a" v="1 &amp; &lt;x&gt;"/>
    <tag k="b" v="2"/>
  </node>
</osm>
`, out)
}

func TestXMLWayRelationAndTombstone(t *testing.T) {
	out := render(t, mime.ApplicationXML, func(f output.Formatter) {
		require.NoError(t, f.WriteWay(&osm.Way{
			ElementInfo: osm.ElementInfo{ID: 5, Version: 1, Changeset: 3, Timestamp: ts, Visible: true},
			Nodes:       []int64{1, 2},
		}))
		require.NoError(t, f.WriteRelation(&osm.Relation{
			ElementInfo: osm.ElementInfo{ID: 6, Version: 1, Changeset: 3, Timestamp: ts, Visible: true},
			Members:     []osm.Member{{Type: osm.TypeWay, Ref: 5, Role: "outer"}},
			Tags:        osm.Tags{"type": "multipolygon"},
		}))
		require.NoError(t, f.WriteNode(&osm.Node{
			ElementInfo: osm.ElementInfo{ID: 7, Version: 3, Changeset: 3, Timestamp: ts, Visible: false},
		}))
	})

	assert.Contains(t, out, `  <way id="5" visible="true" version="1" changeset="3" timestamp="2024-05-06T07:08:09Z">
    <nd ref="1"/>
    <nd ref="2"/>
  </way>`)
	assert.Contains(t, out, `    <member type="way" ref="5" role="outer"/>
    <tag k="type" v="multipolygon"/>`)
	assert.Contains(t, out, `  <node id="7" visible="false" version="3" changeset="3" timestamp="2024-05-06T07:08:09Z"/>`)
	assert.NotContains(t, out, `uid=`)
}

func TestJSONNodeDocument(t *testing.T) {
	out := render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartElementType(osm.TypeNode))
		require.NoError(t, f.WriteNode(testNode(osm.Tags{"a": "1", "b": "2"})))
		require.NoError(t, f.EndElementType(osm.TypeNode))
		require.NoError(t, f.StartElementType(osm.TypeWay))
		require.NoError(t, f.WriteWay(&osm.Way{
			ElementInfo: osm.ElementInfo{ID: 5, Version: 1, Changeset: 3, Timestamp: ts, Visible: true},
			Nodes:       []int64{1},
		}))
		require.NoError(t, f.EndElementType(osm.TypeWay))
	})

	require.True(t, gjson.Valid(out), out)
	require.Equal(t, `{"version":"0.6","generator":"test 1.0","copyright":"OpenStreetMap and contributors",`+
		`"attribution":"http://www.openstreetmap.org/copyright","license":"http://opendatacommons.org/licenses/odbl/1-0/",`+
		`"elements":[{"type":"node","id":1,"lat":51.5000000,"lon":0.1000000,"timestamp":"2024-05-06T07:08:09Z",`+
		`"version":2,"changeset":3,"user":"mapper","uid":4,"tags":{"a":"1","b":"2"}},`+
		`{"type":"way","id":5,"timestamp":"2024-05-06T07:08:09Z","version":1,"changeset":3,"nodes":[1]}]}`, out)
}

func TestTagSetRoundTrip(t *testing.T) {
	tags := osm.Tags{"a": "1", "b": "2"}

	xml := render(t, mime.ApplicationXML, func(f output.Formatter) { require.NoError(t, f.WriteNode(testNode(tags))) })
	assert.Contains(t, xml, `<tag k="a" v="1"/>`)
	assert.Contains(t, xml, `<tag k="b" v="2"/>`)

	js := render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartElementType(osm.TypeNode))
		require.NoError(t, f.WriteNode(testNode(tags)))
	})
	got := map[string]string{}
	gjson.Get(js, "elements.0.tags").ForEach(func(k, v gjson.Result) bool {
		got[k.String()] = v.String()
		return true
	})
	assert.Equal(t, map[string]string(tags), got)
}

func TestEmptyTagsAsymmetry(t *testing.T) {
	js := render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartElementType(osm.TypeNode))
		require.NoError(t, f.WriteNode(testNode(nil)))
	})
	require.True(t, gjson.Valid(js))
	assert.False(t, gjson.Get(js, "elements.0.tags").Exists())

	xml := render(t, mime.ApplicationXML, func(f output.Formatter) { require.NoError(t, f.WriteNode(testNode(nil))) })
	assert.NotContains(t, xml, "<tag")
	assert.Contains(t, xml, `lon="0.1000000"/>`)
}

func TestJSONEmptyRelationMembersOmitted(t *testing.T) {
	js := render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartElementType(osm.TypeRelation))
		require.NoError(t, f.WriteRelation(&osm.Relation{
			ElementInfo: osm.ElementInfo{ID: 1, Version: 1, Timestamp: ts, Visible: true},
		}))
	})
	assert.False(t, gjson.Get(js, "elements.0.members").Exists())

	js = render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartElementType(osm.TypeNode))
		require.NoError(t, f.WriteNode(&osm.Node{ElementInfo: osm.ElementInfo{ID: 2, Version: 2, Timestamp: ts}}))
	})
	assert.False(t, gjson.Get(js, "elements.0.visible").Bool())
	assert.True(t, gjson.Get(js, "elements.0.visible").Exists())
	assert.False(t, gjson.Get(js, "elements.0.lat").Exists())
}

func testChangeset(closedAt time.Time, author *osm.User) *osm.Changeset {
	return &osm.Changeset{
		ID: 10, CreatedAt: ts, ClosedAt: closedAt, Author: author,
		NumChanges: 3, CommentsCount: 1,
		Tags: osm.Tags{"comment": "fix"},
		Comments: []osm.Comment{{
			ID: 1, Author: osm.User{ID: 4, DisplayName: "mapper"}, CreatedAt: ts, Body: "looks <good>",
		}},
	}
}

func TestChangesetOpenClosed(t *testing.T) {
	closedAt := ts.Add(time.Hour)
	author := &osm.User{ID: 4, DisplayName: "mapper"}

	for _, tt := range []struct {
		name    string
		cs      *osm.Changeset
		now     time.Time
		expOpen bool
	}{
		{"closed", testChangeset(closedAt, author), closedAt.Add(time.Minute), false},
		{"still open", testChangeset(closedAt, author), closedAt.Add(-time.Minute), true},
		{"no close time", testChangeset(time.Time{}, author), closedAt, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			xml := render(t, mime.ApplicationXML, func(f output.Formatter) {
				require.NoError(t, f.WriteChangeset(tt.cs, false, tt.now))
			})
			js := render(t, mime.ApplicationJSON, func(f output.Formatter) {
				require.NoError(t, f.StartChangeset(false))
				require.NoError(t, f.WriteChangeset(tt.cs, false, tt.now))
				require.NoError(t, f.EndChangeset(false))
			})

			if tt.expOpen {
				assert.Contains(t, xml, `open="true"`)
				assert.NotContains(t, xml, `closed_at=`)
				assert.False(t, gjson.Get(js, "changeset.closed_at").Exists())
			} else {
				assert.Contains(t, xml, `closed_at="2024-05-06T08:08:09Z" open="false"`)
				assert.Equal(t, "2024-05-06T08:08:09Z", gjson.Get(js, "changeset.closed_at").String())
			}
			assert.Equal(t, tt.expOpen, gjson.Get(js, "changeset.open").Bool())
		})
	}
}

func TestChangesetAnonymousAndDiscussion(t *testing.T) {
	cs := testChangeset(time.Time{}, nil)

	xml := render(t, mime.ApplicationXML, func(f output.Formatter) { require.NoError(t, f.WriteChangeset(cs, true, ts)) })
	assert.NotContains(t, xml, `user="`)
	assert.NotContains(t, xml, ` uid="4" comments`)
	assert.Contains(t, xml, `<comment id="1" date="2024-05-06T07:08:09Z" uid="4" user="mapper">
        <text>looks &lt;good&gt;</text>
      </comment>`)

	js := render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartChangeset(true))
		require.NoError(t, f.WriteChangeset(cs, true, ts))
		require.NoError(t, f.EndChangeset(true))
	})
	require.True(t, gjson.Valid(js), js)
	assert.False(t, gjson.Get(js, "changesets.0.uid").Exists())
	assert.False(t, gjson.Get(js, "changesets.0.user").Exists())
	assert.Equal(t, "looks <good>", gjson.Get(js, "changesets.0.discussion.0.text").String())

	// requested, but empty
	cs.Comments = nil
	xml = render(t, mime.ApplicationXML, func(f output.Formatter) { require.NoError(t, f.WriteChangeset(cs, true, ts)) })
	assert.Contains(t, xml, "<discussion/>")

	js = render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartChangeset(false))
		require.NoError(t, f.WriteChangeset(cs, true, ts))
	})
	assert.False(t, gjson.Get(js, "changeset.discussion").Exists())
}

func TestMidStreamError(t *testing.T) {
	xml := render(t, mime.ApplicationXML, func(f output.Formatter) {
		require.NoError(t, f.WriteNode(testNode(nil)))
		require.NoError(t, f.Error("database went away"))
	})
	assert.Contains(t, xml, "  <error>database went away</error>\n</osm>\n")

	js := render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.StartElementType(osm.TypeNode))
		require.NoError(t, f.WriteNode(testNode(nil)))
		require.NoError(t, f.Error("database went away"))
	})
	require.True(t, gjson.Valid(js), js)
	assert.Equal(t, "database went away", gjson.Get(js, "elements.1.error").String())

	js = render(t, mime.ApplicationJSON, func(f output.Formatter) {
		require.NoError(t, f.Error("early"))
	})
	require.True(t, gjson.Valid(js), js)
	assert.Equal(t, "early", gjson.Get(js, "error").String())

	txt := render(t, mime.TextPlain, func(f output.Formatter) {
		require.NoError(t, f.WriteNode(testNode(nil)))
		require.NoError(t, f.Error("plain"))
	})
	assert.Equal(t, "plain", txt)
}

func TestCloseBalancesDocument(t *testing.T) {
	var buf memBuffer
	f, err := output.New(mime.ApplicationJSON, &buf)
	require.NoError(t, err)
	require.NoError(t, f.StartDocument("g", output.RootOSM))
	require.NoError(t, f.StartElementType(osm.TypeNode))
	require.NoError(t, f.WriteNode(testNode(nil)))
	f.Close()
	require.True(t, gjson.Valid(buf.String()), buf.String())

	buf = memBuffer{}
	xw := output.NewXMLWriter(&buf)
	xw.Start("osm")
	xw.Start("node")
	xw.Close()
	require.Equal(t, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<osm>\n  <node/>\n</osm>\n", buf.String())
	require.Positive(t, buf.flushes)
}

func TestWriteErrorIsDistinguishable(t *testing.T) {
	buf := memBuffer{fail: true}
	f, err := output.New(mime.ApplicationXML, &buf)
	require.NoError(t, err)
	require.NoError(t, f.StartDocument("g", output.RootOSM))

	err = f.Flush()
	require.Error(t, err)
	require.True(t, errors.Is(err, output.ErrWrite))

	// sticky, and teardown does not panic or propagate
	require.True(t, errors.Is(f.WriteNode(testNode(nil)), output.ErrWrite))
	f.Close()
}

func TestXMLAttrOutsideStartTag(t *testing.T) {
	var buf memBuffer
	w := output.NewXMLWriter(&buf)
	w.Start("osm")
	w.Text("x")
	w.Attr("late", "1")
	require.Error(t, w.Err())
	require.False(t, errors.Is(w.Err(), output.ErrWrite))
}

func TestXMLAttributeEscaping(t *testing.T) {
	var buf memBuffer
	w := output.NewXMLWriter(&buf)
	w.Start("tag")
	w.Attr("v", "a\"b\nc\td&e")
	w.Close()
	require.Contains(t, buf.String(), `<tag v="a&quot;b&#10;c&#9;d&amp;e"/>`)
}

func TestJSONWriterNoHTMLEscaping(t *testing.T) {
	var buf memBuffer
	w := output.NewJSONWriter(&buf)
	w.StartObject()
	w.Key("k")
	w.String("<a&b> \"q\"")
	w.EndObject()
	require.NoError(t, w.Flush())
	require.Equal(t, `{"k":"<a&b> \"q\""}`, buf.String())
}

func TestNewUnknownType(t *testing.T) {
	_, err := output.New(mime.Any, &memBuffer{})
	require.Error(t, err)
}
