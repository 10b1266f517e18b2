package output

import (
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
)

// XMLFormatter writes the OSM XML format.
type XMLFormatter struct {
	w *XMLWriter
}

// NewXMLFormatter inits the formatter on top of w.
func NewXMLFormatter(w *XMLWriter) *XMLFormatter { return &XMLFormatter{w: w} }

func (f *XMLFormatter) MimeType() mime.Type { return mime.ApplicationXML }

func (f *XMLFormatter) StartDocument(generator string, root Root) error {
	f.w.Start(string(root))
	f.w.Attr("version", APIVersion)
	f.w.Attr("generator", generator)
	f.w.Attr("copyright", Copyright)
	f.w.Attr("attribution", Attribution)
	f.w.Attr("license", License)
	return f.w.Err()
}

func (f *XMLFormatter) EndDocument() error {
	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) WriteBounds(b osm.BBox) error {
	f.w.Start("bounds")
	f.w.AttrFloat("minlat", b.MinLat)
	f.w.AttrFloat("minlon", b.MinLon)
	f.w.AttrFloat("maxlat", b.MaxLat)
	f.w.AttrFloat("maxlon", b.MaxLon)
	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) StartElementType(osm.ElementType) error { return f.w.Err() }
func (f *XMLFormatter) EndElementType(osm.ElementType) error   { return f.w.Err() }
func (f *XMLFormatter) StartChangeset(bool) error              { return f.w.Err() }
func (f *XMLFormatter) EndChangeset(bool) error                { return f.w.Err() }

func (f *XMLFormatter) StartAction(a osm.Action) error {
	f.w.Start(a.String())
	return f.w.Err()
}

func (f *XMLFormatter) EndAction(osm.Action) error {
	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) WriteNode(n *osm.Node) error {
	f.w.Start("node")
	f.writeCommon(n.ElementInfo)
	if n.Visible {
		f.w.AttrFloat("lat", n.Lat)
		f.w.AttrFloat("lon", n.Lon)
		f.writeTags(n.Tags)
	}
	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) WriteWay(way *osm.Way) error {
	f.w.Start("way")
	f.writeCommon(way.ElementInfo)
	if way.Visible {
		for _, ref := range way.Nodes {
			f.w.Start("nd")
			f.w.AttrInt("ref", ref)
			f.w.End()
		}
		f.writeTags(way.Tags)
	}
	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) WriteRelation(r *osm.Relation) error {
	f.w.Start("relation")
	f.writeCommon(r.ElementInfo)
	if r.Visible {
		for _, m := range r.Members {
			f.w.Start("member")
			f.w.Attr("type", m.Type.String())
			f.w.AttrInt("ref", m.Ref)
			f.w.Attr("role", m.Role)
			f.w.End()
		}
		f.writeTags(r.Tags)
	}
	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) WriteChangeset(c *osm.Changeset, includeComments bool, now time.Time) error {
	f.w.Start("changeset")
	f.w.AttrInt("id", c.ID)
	f.w.Attr("created_at", osm.FormatTime(c.CreatedAt))

	open := c.IsOpenAt(now)
	if !open {
		f.w.Attr("closed_at", osm.FormatTime(c.ClosedAt))
	}
	f.w.AttrBool("open", open)

	if c.Author != nil {
		f.w.Attr("user", c.Author.DisplayName)
		f.w.AttrInt("uid", c.Author.ID)
	}

	if c.Bounds != nil {
		f.w.AttrFloat("min_lat", c.Bounds.MinLat)
		f.w.AttrFloat("min_lon", c.Bounds.MinLon)
		f.w.AttrFloat("max_lat", c.Bounds.MaxLat)
		f.w.AttrFloat("max_lon", c.Bounds.MaxLon)
	}

	f.w.AttrInt("comments_count", c.CommentsCount)
	f.w.AttrInt("changes_count", c.NumChanges)
	f.writeTags(c.Tags)

	if includeComments {
		f.w.Start("discussion")
		for _, cm := range c.Comments {
			f.w.Start("comment")
			f.w.AttrInt("id", cm.ID)
			f.w.Attr("date", osm.FormatTime(cm.CreatedAt))
			f.w.AttrInt("uid", cm.Author.ID)
			f.w.Attr("user", cm.Author.DisplayName)
			f.w.Start("text")
			f.w.Text(cm.Body)
			f.w.End()
			f.w.End()
		}
		f.w.End()
	}

	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) Error(msg string) error {
	f.w.Start("error")
	f.w.Text(msg)
	f.w.End()
	return f.w.Err()
}

func (f *XMLFormatter) Flush() error { return f.w.Flush() }
func (f *XMLFormatter) Close()       { f.w.Close() }

func (f *XMLFormatter) writeCommon(info osm.ElementInfo) {
	f.w.AttrInt("id", info.ID)
	f.w.AttrBool("visible", info.Visible)
	f.w.AttrInt("version", info.Version)
	f.w.AttrInt("changeset", info.Changeset)
	f.w.Attr("timestamp", osm.FormatTime(info.Timestamp))
	if info.Author != nil {
		f.w.Attr("user", info.Author.DisplayName)
		f.w.AttrInt("uid", info.Author.ID)
	}
}

func (f *XMLFormatter) writeTags(tags osm.Tags) {
	for _, k := range tags.Keys() {
		f.w.Start("tag")
		f.w.Attr("k", k)
		f.w.Attr("v", tags[k])
		f.w.End()
	}
}

var _ Formatter = &XMLFormatter{}
