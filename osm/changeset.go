package osm

import "time"

// Comment is one entry of a changeset discussion.
type Comment struct {
	ID        int64
	Author    User
	CreatedAt time.Time
	Body      string
}

// Changeset groups the edits of one user over a time window.
type Changeset struct {
	ID            int64
	CreatedAt     time.Time
	ClosedAt      time.Time
	Author        *User
	Bounds        *BBox
	NumChanges    int64
	CommentsCount int64
	Tags          Tags
	Comments      []Comment
}

// IsOpenAt reports whether the changeset still accepts changes at the given instant. A changeset without a
// close time is open.
func (c *Changeset) IsOpenAt(now time.Time) bool {
	return c.ClosedAt.IsZero() || now.Before(c.ClosedAt)
}
