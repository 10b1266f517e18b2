package memstore

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
)

// ErrSnapshot is returned when a snapshot can't be decoded.
var ErrSnapshot = errors.New("invalid snapshot")

type xmlTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

type xmlInfo struct {
	ID        int64    `xml:"id,attr"`
	Version   int64    `xml:"version,attr"`
	Changeset int64    `xml:"changeset,attr"`
	Timestamp string   `xml:"timestamp,attr"`
	User      string   `xml:"user,attr"`
	UID       int64    `xml:"uid,attr"`
	Visible   *bool    `xml:"visible,attr"`
	Redacted  bool     `xml:"redacted,attr"`
	Tags      []xmlTag `xml:"tag"`
}

type xmlNode struct {
	xmlInfo
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

type xmlWay struct {
	xmlInfo
	Nds []struct {
		Ref int64 `xml:"ref,attr"`
	} `xml:"nd"`
}

type xmlRelation struct {
	xmlInfo
	Members []struct {
		Type string `xml:"type,attr"`
		Ref  int64  `xml:"ref,attr"`
		Role string `xml:"role,attr"`
	} `xml:"member"`
}

type xmlComment struct {
	ID   int64  `xml:"id,attr"`
	Date string `xml:"date,attr"`
	UID  int64  `xml:"uid,attr"`
	User string `xml:"user,attr"`
	Text string `xml:"text"`
}

type xmlChangeset struct {
	ID            int64        `xml:"id,attr"`
	CreatedAt     string       `xml:"created_at,attr"`
	ClosedAt      string       `xml:"closed_at,attr"`
	User          string       `xml:"user,attr"`
	UID           int64        `xml:"uid,attr"`
	MinLat        *float64     `xml:"min_lat,attr"`
	MinLon        *float64     `xml:"min_lon,attr"`
	MaxLat        *float64     `xml:"max_lat,attr"`
	MaxLon        *float64     `xml:"max_lon,attr"`
	NumChanges    int64        `xml:"changes_count,attr"`
	CommentsCount int64        `xml:"comments_count,attr"`
	Tags          []xmlTag     `xml:"tag"`
	Comments      []xmlComment `xml:"discussion>comment"`
}

type xmlUser struct {
	ID          int64  `xml:"id,attr"`
	DisplayName string `xml:"display_name,attr"`
	Roles       string `xml:"roles,attr"`
	Blocked     bool   `xml:"blocked,attr"`
}

type xmlToken struct {
	Key        string `xml:"key,attr"`
	UID        int64  `xml:"uid,attr"`
	ExpiresAt  string `xml:"expires_at,attr"`
	Revoked    bool   `xml:"revoked,attr"`
	AllowWrite bool   `xml:"allow_write,attr"`
}

// Decode reads an OSM XML document into the store. Besides elements and changesets the document may carry
// "user" and "token" elements, which are used to seed the credentials of a development setup.
func (s *Store) Decode(r io.Reader) error {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return errors.Mark(errors.Wrap(err, "read token"), ErrSnapshot)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local == "osm" {
			continue
		}

		if err := s.decodeElement(dec, start); err != nil {
			return errors.Mark(errors.Wrapf(err, "decode %s", start.Name.Local), ErrSnapshot)
		}
	}
}

func (s *Store) decodeElement(dec *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "node":
		var x xmlNode
		if err := dec.DecodeElement(&x, &start); err != nil {
			return err
		}
		info, tags, err := x.convert()
		if err != nil {
			return err
		}
		s.AddNode(osm.Node{ElementInfo: info, Lat: x.Lat, Lon: x.Lon, Tags: tags})
	case "way":
		var x xmlWay
		if err := dec.DecodeElement(&x, &start); err != nil {
			return err
		}
		info, tags, err := x.convert()
		if err != nil {
			return err
		}
		w := osm.Way{ElementInfo: info, Tags: tags}
		for _, nd := range x.Nds {
			w.Nodes = append(w.Nodes, nd.Ref)
		}
		s.AddWay(w)
	case "relation":
		var x xmlRelation
		if err := dec.DecodeElement(&x, &start); err != nil {
			return err
		}
		info, tags, err := x.convert()
		if err != nil {
			return err
		}
		r := osm.Relation{ElementInfo: info, Tags: tags}
		for _, m := range x.Members {
			t, ok := osm.ParseElementType(m.Type)
			if !ok {
				return errors.Newf("relation %d: unknown member type %q", x.ID, m.Type)
			}
			r.Members = append(r.Members, osm.Member{Type: t, Ref: m.Ref, Role: m.Role})
		}
		s.AddRelation(r)
	case "changeset":
		var x xmlChangeset
		if err := dec.DecodeElement(&x, &start); err != nil {
			return err
		}
		cs, err := x.convert()
		if err != nil {
			return err
		}
		s.AddChangeset(cs)
	case "user":
		var x xmlUser
		if err := dec.DecodeElement(&x, &start); err != nil {
			return err
		}
		rec := UserRecord{User: osm.User{ID: x.ID, DisplayName: x.DisplayName}, Blocked: x.Blocked}
		for _, role := range strings.Fields(x.Roles) {
			rec.Roles = append(rec.Roles, selection.Role(role))
		}
		s.AddUser(rec)
	case "token":
		var x xmlToken
		if err := dec.DecodeElement(&x, &start); err != nil {
			return err
		}
		expires, err := parseTime(x.ExpiresAt)
		if err != nil {
			return err
		}
		s.AddToken(x.Key, Token{UserID: x.UID, ExpiresAt: expires, Revoked: x.Revoked, AllowWrite: x.AllowWrite})
	default:
		return dec.Skip()
	}

	return nil
}

func (x xmlInfo) convert() (osm.ElementInfo, osm.Tags, error) {
	ts, err := parseTime(x.Timestamp)
	if err != nil {
		return osm.ElementInfo{}, nil, err
	}

	info := osm.ElementInfo{
		ID:        x.ID,
		Version:   x.Version,
		Changeset: x.Changeset,
		Timestamp: ts,
		Author:    author(x.UID, x.User),
		Visible:   x.Visible == nil || *x.Visible,
		Redacted:  x.Redacted,
	}
	if info.ID <= 0 || info.Version <= 0 {
		return info, nil, errors.Newf("element %d has an invalid id or version %d", x.ID, x.Version)
	}

	return info, tags(x.Tags), nil
}

func (x xmlChangeset) convert() (osm.Changeset, error) {
	created, err := parseTime(x.CreatedAt)
	if err != nil {
		return osm.Changeset{}, err
	}
	closed, err := parseTime(x.ClosedAt)
	if err != nil {
		return osm.Changeset{}, err
	}

	cs := osm.Changeset{
		ID:            x.ID,
		CreatedAt:     created,
		ClosedAt:      closed,
		Author:        author(x.UID, x.User),
		NumChanges:    x.NumChanges,
		CommentsCount: x.CommentsCount,
		Tags:          tags(x.Tags),
	}

	if x.MinLat != nil && x.MinLon != nil && x.MaxLat != nil && x.MaxLon != nil {
		cs.Bounds = &osm.BBox{MinLat: *x.MinLat, MinLon: *x.MinLon, MaxLat: *x.MaxLat, MaxLon: *x.MaxLon}
	}

	for _, c := range x.Comments {
		at, err := parseTime(c.Date)
		if err != nil {
			return cs, err
		}
		cs.Comments = append(cs.Comments, osm.Comment{
			ID: c.ID, CreatedAt: at, Body: c.Text, Author: osm.User{ID: c.UID, DisplayName: c.User},
		})
	}
	if cs.CommentsCount == 0 {
		cs.CommentsCount = int64(len(cs.Comments))
	}

	return cs, nil
}

func author(uid int64, name string) *osm.User {
	if uid == 0 {
		return nil
	}
	return &osm.User{ID: uid, DisplayName: name}
}

func tags(xt []xmlTag) osm.Tags {
	if len(xt) == 0 {
		return nil
	}

	t := make(osm.Tags, len(xt))
	for _, tag := range xt {
		t[tag.K] = tag.V
	}
	return t
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return t, errors.Wrapf(err, "parse time %q", s)
	}
	return t.UTC(), nil
}
