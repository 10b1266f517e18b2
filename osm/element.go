package osm

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// TimeFormat is how every timestamp is rendered on the wire.
const TimeFormat = "2006-01-02T15:04:05Z"

// FormatTime renders t in UTC using [TimeFormat].
func FormatTime(t time.Time) string { return t.UTC().Format(TimeFormat) }

// ElementType enumerates the kinds of records in the model.
type ElementType int

const (
	TypeNode ElementType = iota
	TypeWay
	TypeRelation
	TypeChangeset
)

func (t ElementType) String() string {
	switch t {
	case TypeNode:
		return "node"
	case TypeWay:
		return "way"
	case TypeRelation:
		return "relation"
	case TypeChangeset:
		return "changeset"
	default:
		return "unknown"
	}
}

// ParseElementType parses the lower-case element name, changesets are not members and cannot be parsed.
func ParseElementType(s string) (ElementType, bool) {
	switch s {
	case "node":
		return TypeNode, true
	case "way":
		return TypeWay, true
	case "relation":
		return TypeRelation, true
	default:
		return 0, false
	}
}

// User identifies an author. Both fields are always present together.
type User struct {
	ID          int64
	DisplayName string
}

// Tags is an unordered bag of string tags, keys are unique within an element.
type Tags map[string]string

// Keys returns the tag keys in a stable order for serialization.
func (t Tags) Keys() []string {
	keys := lo.Keys(t)
	slices.Sort(keys)
	return keys
}

// ElementInfo is shared by nodes, ways and relations.
type ElementInfo struct {
	ID        int64
	Version   int64
	Changeset int64
	Timestamp time.Time
	Author    *User
	Visible   bool
	// Redacted versions are hidden unless a moderator asks for them.
	Redacted bool
}

// Info returns the shared info, it is promoted to every element type.
func (i ElementInfo) Info() ElementInfo { return i }

// Edition identifies exactly this version of the element.
func (i ElementInfo) Edition() Edition { return Edition{ID: i.ID, Version: i.Version} }

// Node is a point with a location.
type Node struct {
	ElementInfo
	Lon, Lat float64
	Tags     Tags
}

// Way is an ordered list of node references.
type Way struct {
	ElementInfo
	Nodes []int64
	Tags  Tags
}

// Member is a typed reference from a relation.
type Member struct {
	Type ElementType
	Ref  int64
	Role string
}

// Relation is an ordered list of members.
type Relation struct {
	ElementInfo
	Members []Member
	Tags    Tags
}

// Action is what happened to an element in an osmChange document.
type Action int

const (
	ActionCreate Action = iota
	ActionModify
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionModify:
		return "modify"
	default:
		return "delete"
	}
}

// ActionOf derives the change action purely from the version and visibility of an element.
func ActionOf(info ElementInfo) Action {
	switch {
	case info.Version == 1:
		return ActionCreate
	case info.Visible:
		return ActionModify
	default:
		return ActionDelete
	}
}
