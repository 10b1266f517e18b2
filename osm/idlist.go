package osm

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Edition identifies an element and optionally one of its versions. A zero version means "current".
type Edition struct {
	ID      int64
	Version int64
}

// HasVersion reports whether a specific version was requested.
func (e Edition) HasVersion() bool { return e.Version > 0 }

func (e Edition) String() string {
	if !e.HasVersion() {
		return strconv.FormatInt(e.ID, 10)
	}
	return strconv.FormatInt(e.ID, 10) + "v" + strconv.FormatInt(e.Version, 10)
}

// ErrIDList is returned for id lists that are empty or contain an entry that does not parse.
var ErrIDList = errors.New("invalid id list")

// ParseIDList parses a comma separated list of positive ids, each optionally followed by "v" and a
// positive version. The result is sorted and free of duplicates.
func ParseIDList(s string) ([]Edition, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.Wrap(ErrIDList, "empty")
	}

	parts := strings.Split(s, ",")
	eds := make([]Edition, 0, len(parts))

	for _, p := range parts {
		ed, err := parseEdition(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "entry %q", p), ErrIDList)
		}
		eds = append(eds, ed)
	}

	slices.SortFunc(eds, func(a, b Edition) int {
		return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Version, b.Version))
	})

	return slices.Compact(eds), nil
}

func parseEdition(s string) (Edition, error) {
	idPart, versionPart, hasVersion := strings.Cut(s, "v")

	id, err := ParseID(idPart)
	if err != nil {
		return Edition{}, err
	}

	if !hasVersion {
		return Edition{ID: id}, nil
	}

	version, err := ParseID(versionPart)
	if err != nil {
		return Edition{}, errors.Wrap(err, "version")
	}

	return Edition{ID: id, Version: version}, nil
}

// ParseID parses a strictly positive decimal identifier.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse id")
	}

	if id <= 0 {
		return 0, errors.Newf("id must be positive, got %d", id)
	}

	return id, nil
}
