// Package memstore keeps the geodata in memory. It implements every data capability the API consumes and
// is loaded from OSM XML snapshots. All versions of every element are kept so history requests work.
package memstore

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/advdv/osmhttp/osm"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
)

// UserRecord is what the store knows about a user.
type UserRecord struct {
	osm.User
	Roles   []selection.Role
	Blocked bool
}

// Token is an OAuth2 access token. The key it is stored under is either the token itself or its sha256
// hex digest.
type Token struct {
	UserID     int64
	ExpiresAt  time.Time
	Revoked    bool
	AllowWrite bool
}

// Stats counts what is in the store.
type Stats struct {
	Nodes, NodeVersions         int
	Ways, WayVersions           int
	Relations, RelationVersions int
	Changesets                  int
	Users                       int
}

// Store holds all data. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	nodes      map[int64][]osm.Node
	ways       map[int64][]osm.Way
	relations  map[int64][]osm.Relation
	changesets map[int64]*osm.Changeset
	users      map[int64]*UserRecord
	tokens     map[string]Token

	readOnly    bool
	now         func() time.Time
	lastCSID    atomic.Int64
	idleTimeout time.Duration
	maxDuration time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithReadOnly makes every update transaction report read-only mode.
func WithReadOnly(ro bool) Option { return func(s *Store) { s.readOnly = ro } }

// WithClock replaces the clock used for token expiry and changeset times.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New inits an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:       map[int64][]osm.Node{},
		ways:        map[int64][]osm.Way{},
		relations:   map[int64][]osm.Relation{},
		changesets:  map[int64]*osm.Changeset{},
		users:       map[int64]*UserRecord{},
		tokens:      map[string]Token{},
		now:         time.Now,
		idleTimeout: time.Hour,
		maxDuration: 24 * time.Hour,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// MakeSelection implements [selection.Factory].
func (s *Store) MakeSelection(ctx context.Context) (selection.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "make selection")
	}
	return newSelection(s), nil
}

// Users exposes the users and tokens of s without a request selection.
func (s *Store) Users() selection.UserStore { return newSelection(s) }

// AddNode adds a version of a node.
func (s *Store) AddNode(n osm.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = insertVersion(s.nodes[n.ID], n, func(n osm.Node) int64 { return n.Version })
	s.addAuthor(n.Author)
}

// AddWay adds a version of a way.
func (s *Store) AddWay(w osm.Way) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ways[w.ID] = insertVersion(s.ways[w.ID], w, func(w osm.Way) int64 { return w.Version })
	s.addAuthor(w.Author)
}

// AddRelation adds a version of a relation.
func (s *Store) AddRelation(r osm.Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations[r.ID] = insertVersion(s.relations[r.ID], r, func(r osm.Relation) int64 { return r.Version })
	s.addAuthor(r.Author)
}

// AddChangeset adds or replaces a changeset.
func (s *Store) AddChangeset(cs osm.Changeset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changesets[cs.ID] = &cs
	s.addAuthor(cs.Author)

	for {
		last := s.lastCSID.Load()
		if cs.ID <= last || s.lastCSID.CompareAndSwap(last, cs.ID) {
			break
		}
	}
}

// AddUser adds or replaces a user.
func (s *Store) AddUser(u UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// AddToken registers an access token under the given key.
func (s *Store) AddToken(key string, t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = t
}

// Stats returns the number of records in the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Nodes: len(s.nodes), Ways: len(s.ways), Relations: len(s.relations),
		Changesets: len(s.changesets), Users: len(s.users),
	}
	for _, vs := range s.nodes {
		st.NodeVersions += len(vs)
	}
	for _, vs := range s.ways {
		st.WayVersions += len(vs)
	}
	for _, vs := range s.relations {
		st.RelationVersions += len(vs)
	}
	return st
}

func (s *Store) addAuthor(u *osm.User) {
	if u == nil {
		return
	}
	if _, ok := s.users[u.ID]; !ok {
		s.users[u.ID] = &UserRecord{User: *u}
	}
}

// insertVersion keeps the versions sorted, a version that exists is replaced.
func insertVersion[T any](vs []T, v T, version func(T) int64) []T {
	idx, found := slices.BinarySearchFunc(vs, version(v), func(e T, target int64) int {
		return int(version(e) - target)
	})
	if found {
		vs[idx] = v
		return vs
	}
	return slices.Insert(vs, idx, v)
}

func latest[T any](vs []T) (T, bool) {
	var zero T
	if len(vs) == 0 {
		return zero, false
	}
	return vs[len(vs)-1], true
}
