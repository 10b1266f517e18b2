package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
)

// ErrTxDone is returned when an update is used after it was committed or rolled back.
var ErrTxDone = errors.New("update already committed or rolled back")

// Update stages changes to changesets and applies them all at once on commit.
type Update struct {
	s *Store

	mu     sync.Mutex
	done   bool
	staged map[int64]*osm.Changeset
}

var _ selection.Update = (*Update)(nil)

// MakeUpdate implements [selection.UpdateFactory].
func (s *Store) MakeUpdate(ctx context.Context) (selection.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "make update")
	}
	return &Update{s: s, staged: map[int64]*osm.Changeset{}}, nil
}

// IsReadOnly reports whether the store rejects changes.
func (u *Update) IsReadOnly() bool { return u.s.readOnly }

// CreateChangeset opens a new changeset for the user and returns its id. The id is reserved right away,
// even if the update is rolled back.
func (u *Update) CreateChangeset(_ context.Context, uid int64, tags osm.Tags) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.check(); err != nil {
		return 0, err
	}

	u.s.mu.RLock()
	author := osm.User{ID: uid}
	if rec, ok := u.s.users[uid]; ok {
		author = rec.User
	}
	u.s.mu.RUnlock()

	now := u.s.now().UTC()
	cs := &osm.Changeset{
		ID:        u.s.lastCSID.Add(1),
		CreatedAt: now,
		ClosedAt:  now.Add(u.s.idleTimeout),
		Author:    &author,
		Tags:      maps.Clone(tags),
	}

	u.staged[cs.ID] = cs
	return cs.ID, nil
}

// UpdateChangeset replaces the tags of an open changeset owned by the user.
func (u *Update) UpdateChangeset(_ context.Context, id, uid int64, tags osm.Tags) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	cs, err := u.writable(id, uid)
	if err != nil {
		return err
	}

	now := u.s.now().UTC()
	cs.Tags = maps.Clone(tags)
	cs.ClosedAt = now.Add(u.s.idleTimeout)
	if limit := cs.CreatedAt.Add(u.s.maxDuration); cs.ClosedAt.After(limit) {
		cs.ClosedAt = limit
	}

	return nil
}

// CloseChangeset closes an open changeset owned by the user.
func (u *Update) CloseChangeset(_ context.Context, id, uid int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	cs, err := u.writable(id, uid)
	if err != nil {
		return err
	}

	cs.ClosedAt = u.s.now().UTC()
	return nil
}

// Commit makes the staged changes visible to every new selection.
func (u *Update) Commit(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.check(); err != nil {
		return err
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	maps.Copy(u.s.changesets, u.staged)

	u.done = true
	return nil
}

// Rollback drops the staged changes. Rolling back twice is a no-op.
func (u *Update) Rollback(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.staged, u.done = nil, true
	return nil
}

func (u *Update) check() error {
	if u.done {
		return ErrTxDone
	}
	if u.s.readOnly {
		return osmhttp.NewErrorf(osmhttp.CodeBadRequest,
			"Server is currently in read only mode, no database changes allowed at this time")
	}
	return nil
}

// writable returns the staged copy of a changeset the user may change.
func (u *Update) writable(id, uid int64) (*osm.Changeset, error) {
	if err := u.check(); err != nil {
		return nil, err
	}

	cs, ok := u.staged[id]
	if !ok {
		u.s.mu.RLock()
		stored, found := u.s.changesets[id]
		if found {
			cp := *stored
			cp.Tags = maps.Clone(stored.Tags)
			cs = &cp
		}
		u.s.mu.RUnlock()

		if !found {
			return nil, osmhttp.NewErrorf(osmhttp.CodeNotFound, "The changeset with the id %d was not found", id)
		}
	}

	if cs.Author == nil || cs.Author.ID != uid {
		return nil, osmhttp.NewErrorf(osmhttp.CodeConflict, "The user doesn't own that changeset")
	}

	if now := u.s.now(); !cs.IsOpenAt(now) {
		return nil, osmhttp.NewErrorf(osmhttp.CodeConflict,
			"The changeset %d was closed at %s", id, osm.FormatTime(cs.ClosedAt))
	}

	u.staged[id] = cs
	return cs, nil
}
