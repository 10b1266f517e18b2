package output

import (
	"time"

	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/osm"
)

// JSONFormatter writes the OSM JSON format. Elements are collected under "elements", changesets under
// "changeset" or "changesets".
type JSONFormatter struct {
	w          *JSONWriter
	inElements bool
}

// NewJSONFormatter inits the formatter on top of w.
func NewJSONFormatter(w *JSONWriter) *JSONFormatter { return &JSONFormatter{w: w} }

func (f *JSONFormatter) MimeType() mime.Type { return mime.ApplicationJSON }

func (f *JSONFormatter) StartDocument(generator string, _ Root) error {
	f.w.StartObject()
	f.property("version", APIVersion)
	f.property("generator", generator)
	f.property("copyright", Copyright)
	f.property("attribution", Attribution)
	f.property("license", License)
	return f.w.Err()
}

func (f *JSONFormatter) EndDocument() error {
	if f.inElements {
		f.w.EndArray()
		f.inElements = false
	}
	f.w.EndObject()
	return f.w.Err()
}

func (f *JSONFormatter) WriteBounds(b osm.BBox) error {
	f.w.Key("bounds")
	f.w.StartObject()
	f.floatProperty("minlat", b.MinLat)
	f.floatProperty("minlon", b.MinLon)
	f.floatProperty("maxlat", b.MaxLat)
	f.floatProperty("maxlon", b.MaxLon)
	f.w.EndObject()
	return f.w.Err()
}

func (f *JSONFormatter) StartElementType(osm.ElementType) error {
	if !f.inElements {
		f.w.Key("elements")
		f.w.StartArray()
		f.inElements = true
	}
	return f.w.Err()
}

func (f *JSONFormatter) EndElementType(osm.ElementType) error { return f.w.Err() }
func (f *JSONFormatter) StartAction(osm.Action) error         { return f.w.Err() }
func (f *JSONFormatter) EndAction(osm.Action) error           { return f.w.Err() }

func (f *JSONFormatter) StartChangeset(multi bool) error {
	if multi {
		f.w.Key("changesets")
		f.w.StartArray()
	} else {
		f.w.Key("changeset")
	}
	return f.w.Err()
}

func (f *JSONFormatter) EndChangeset(multi bool) error {
	if multi {
		f.w.EndArray()
	}
	return f.w.Err()
}

func (f *JSONFormatter) WriteNode(n *osm.Node) error {
	f.w.StartObject()
	f.property("type", "node")
	f.intProperty("id", n.ID)
	if n.Visible {
		f.floatProperty("lat", n.Lat)
		f.floatProperty("lon", n.Lon)
	}
	f.writeCommon(n.ElementInfo)
	if n.Visible {
		f.writeTags(n.Tags)
	}
	f.w.EndObject()
	return f.w.Err()
}

func (f *JSONFormatter) WriteWay(way *osm.Way) error {
	f.w.StartObject()
	f.property("type", "way")
	f.intProperty("id", way.ID)
	f.writeCommon(way.ElementInfo)
	if way.Visible {
		f.w.Key("nodes")
		f.w.StartArray()
		for _, ref := range way.Nodes {
			f.w.Int(ref)
		}
		f.w.EndArray()
		f.writeTags(way.Tags)
	}
	f.w.EndObject()
	return f.w.Err()
}

func (f *JSONFormatter) WriteRelation(r *osm.Relation) error {
	f.w.StartObject()
	f.property("type", "relation")
	f.intProperty("id", r.ID)
	f.writeCommon(r.ElementInfo)
	if r.Visible {
		if len(r.Members) > 0 {
			f.w.Key("members")
			f.w.StartArray()
			for _, m := range r.Members {
				f.w.StartObject()
				f.property("type", m.Type.String())
				f.intProperty("ref", m.Ref)
				f.property("role", m.Role)
				f.w.EndObject()
			}
			f.w.EndArray()
		}
		f.writeTags(r.Tags)
	}
	f.w.EndObject()
	return f.w.Err()
}

func (f *JSONFormatter) WriteChangeset(c *osm.Changeset, includeComments bool, now time.Time) error {
	f.w.StartObject()
	f.intProperty("id", c.ID)
	f.property("created_at", osm.FormatTime(c.CreatedAt))

	open := c.IsOpenAt(now)
	if !open {
		f.property("closed_at", osm.FormatTime(c.ClosedAt))
	}
	f.w.Key("open")
	f.w.Bool(open)

	if c.Author != nil {
		f.property("user", c.Author.DisplayName)
		f.intProperty("uid", c.Author.ID)
	}

	if c.Bounds != nil {
		f.floatProperty("minlat", c.Bounds.MinLat)
		f.floatProperty("minlon", c.Bounds.MinLon)
		f.floatProperty("maxlat", c.Bounds.MaxLat)
		f.floatProperty("maxlon", c.Bounds.MaxLon)
	}

	f.intProperty("comments_count", c.CommentsCount)
	f.intProperty("changes_count", c.NumChanges)
	f.writeTags(c.Tags)

	if includeComments && len(c.Comments) > 0 {
		f.w.Key("discussion")
		f.w.StartArray()
		for _, cm := range c.Comments {
			f.w.StartObject()
			f.intProperty("id", cm.ID)
			f.property("date", osm.FormatTime(cm.CreatedAt))
			f.intProperty("uid", cm.Author.ID)
			f.property("user", cm.Author.DisplayName)
			f.property("text", cm.Body)
			f.w.EndObject()
		}
		f.w.EndArray()
	}

	f.w.EndObject()
	return f.w.Err()
}

func (f *JSONFormatter) Error(msg string) error {
	f.w.Error(msg)
	return f.w.Err()
}

func (f *JSONFormatter) Flush() error { return f.w.Flush() }
func (f *JSONFormatter) Close()       { f.w.Close() }

func (f *JSONFormatter) writeCommon(info osm.ElementInfo) {
	f.property("timestamp", osm.FormatTime(info.Timestamp))
	f.intProperty("version", info.Version)
	f.intProperty("changeset", info.Changeset)
	if info.Author != nil {
		f.property("user", info.Author.DisplayName)
		f.intProperty("uid", info.Author.ID)
	}
	if !info.Visible {
		f.w.Key("visible")
		f.w.Bool(false)
	}
}

// writeTags omits the key entirely when there are no tags.
func (f *JSONFormatter) writeTags(tags osm.Tags) {
	if len(tags) == 0 {
		return
	}

	f.w.Key("tags")
	f.w.StartObject()
	for _, k := range tags.Keys() {
		f.property(k, tags[k])
	}
	f.w.EndObject()
}

func (f *JSONFormatter) property(k, v string) {
	f.w.Key(k)
	f.w.String(v)
}

func (f *JSONFormatter) intProperty(k string, v int64) {
	f.w.Key(k)
	f.w.Int(v)
}

func (f *JSONFormatter) floatProperty(k string, v float64) {
	f.w.Key(k)
	f.w.Float(v)
}

var _ Formatter = &JSONFormatter{}
