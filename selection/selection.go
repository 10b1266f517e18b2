// Package selection describes the data capabilities request processing consumes. A selection is scoped to a
// single request: it accumulates working sets of ids and streams the matching records to a formatter.
package selection

import (
	"context"
	"time"

	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/output"
)

// Visibility of an element in the current data.
type Visibility int

const (
	NonExist Visibility = iota
	Exists
	Deleted
)

func (v Visibility) String() string {
	switch v {
	case Exists:
		return "exists"
	case Deleted:
		return "deleted"
	default:
		return "non-exist"
	}
}

// Selection is the per-request query surface over current elements.
type Selection interface {
	WriteNodes(ctx context.Context, f output.Formatter) error
	WriteWays(ctx context.Context, f output.Formatter) error
	WriteRelations(ctx context.Context, f output.Formatter) error

	CheckNodeVisibility(ctx context.Context, id int64) (Visibility, error)
	CheckWayVisibility(ctx context.Context, id int64) (Visibility, error)
	CheckRelationVisibility(ctx context.Context, id int64) (Visibility, error)

	// Select* add the elements with the given ids to the working set, deleted ones included, and return
	// how many were found.
	SelectNodes(ctx context.Context, ids []int64) (int, error)
	SelectWays(ctx context.Context, ids []int64) (int, error)
	SelectRelations(ctx context.Context, ids []int64) (int, error)

	// SelectNodesFromBBox selects at most max+1 visible nodes inside b so callers can detect going over max.
	// The expansions below only ever select visible elements.
	SelectNodesFromBBox(ctx context.Context, b osm.BBox, max int) (int, error)
	SelectNodesFromRelations(ctx context.Context) error
	SelectWaysFromNodes(ctx context.Context) error
	SelectWaysFromRelations(ctx context.Context) error
	SelectRelationsFromWays(ctx context.Context) error
	SelectNodesFromWayNodes(ctx context.Context) error
	SelectRelationsFromNodes(ctx context.Context) error
	// SelectRelationsFromRelations selects the parents of the selected relations. With dropSelected only the
	// parents remain in the working set.
	SelectRelationsFromRelations(ctx context.Context, dropSelected bool) error
	SelectRelationsMembersOfRelations(ctx context.Context) error

	// Drop* empty the current working set of that type.
	DropNodes(ctx context.Context) error
	DropWays(ctx context.Context) error
	DropRelations(ctx context.Context) error
}

// HistorySelection is implemented by backends that keep old versions of elements. Historical versions are
// written by the same Write* methods of the [Selection].
type HistorySelection interface {
	Selection

	SelectHistoricalNodes(ctx context.Context, eds []osm.Edition) (int, error)
	SelectHistoricalWays(ctx context.Context, eds []osm.Edition) (int, error)
	SelectHistoricalRelations(ctx context.Context, eds []osm.Edition) (int, error)

	SelectNodesWithHistory(ctx context.Context, ids []int64) (int, error)
	SelectWaysWithHistory(ctx context.Context, ids []int64) (int, error)
	SelectRelationsWithHistory(ctx context.Context, ids []int64) (int, error)

	SelectHistoricalByChangesets(ctx context.Context, ids []int64) (int, error)
	SetRedactionsVisible(visible bool)
}

// ChangesetSelection is implemented by backends that know about changesets.
type ChangesetSelection interface {
	SelectChangesets(ctx context.Context, ids []int64) (int, error)
	SelectChangesetDiscussions(ctx context.Context) error
	WriteChangesets(ctx context.Context, f output.Formatter, now time.Time) error
}

// Role of a user.
type Role string

const (
	RoleModerator     Role = "moderator"
	RoleAdministrator Role = "administrator"
)

// TokenLookup is the outcome of looking up an OAuth2 access token.
type TokenLookup struct {
	UserID     int64
	Found      bool
	Expired    bool
	Revoked    bool
	AllowWrite bool
}

// UserStore answers questions about users and their credentials.
type UserStore interface {
	GetRolesForUser(ctx context.Context, uid int64) ([]Role, error)
	IsUserBlocked(ctx context.Context, uid int64) (bool, error)
	GetUserIDForOAuth2Token(ctx context.Context, token string) (TokenLookup, error)
}

// Factory creates a selection for each request.
type Factory interface {
	MakeSelection(ctx context.Context) (Selection, error)
}

// Update is a transaction that changes data. Nothing is visible to others before Commit.
type Update interface {
	IsReadOnly() bool
	CreateChangeset(ctx context.Context, uid int64, tags osm.Tags) (int64, error)
	UpdateChangeset(ctx context.Context, id, uid int64, tags osm.Tags) error
	CloseChangeset(ctx context.Context, id, uid int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UpdateFactory creates an update transaction for each writing request.
type UpdateFactory interface {
	MakeUpdate(ctx context.Context) (Update, error)
}
