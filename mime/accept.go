package mime

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/advdv/osmhttp"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// ErrMalformedAccept is wrapped by every parse error of an Accept header.
var ErrMalformedAccept = errors.New("Accept header could not be parsed.")

// qvalue is a plain decimal, without sign, exponent or hex notation.
var qvalue = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// AcceptElement is one clause of an Accept header.
type AcceptElement struct {
	Type    string
	Subtype string
	Q       float64
	Params  map[string]string
}

// MediaRange returns "type/subtype".
func (e AcceptElement) MediaRange() string { return e.Type + "/" + e.Subtype }

// ParseAccept parses the header into its clauses, ordered by quality (highest first), then type and subtype.
func ParseAccept(header string) ([]AcceptElement, error) {
	clauses := strings.Split(header, ",")
	elems := make([]AcceptElement, 0, len(clauses))

	for _, clause := range clauses {
		elem, err := parseAcceptClause(clause)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "clause %q", strings.TrimSpace(clause)), ErrMalformedAccept)
		}
		elems = append(elems, elem)
	}

	slices.SortStableFunc(elems, func(a, b AcceptElement) int {
		return cmp.Or(
			cmp.Compare(b.Q, a.Q),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.Subtype, b.Subtype))
	})

	return elems, nil
}

func parseAcceptClause(clause string) (AcceptElement, error) {
	segments := strings.Split(clause, ";")

	mediaRange := strings.TrimSpace(segments[0])
	if mediaRange == "*" {
		mediaRange = "*/*"
	}

	typ, subtype, ok := strings.Cut(mediaRange, "/")
	if !ok || typ == "" || subtype == "" || strings.Contains(subtype, "/") {
		return AcceptElement{}, errors.Newf("media range %q is not of the form type/subtype", mediaRange)
	}

	if typ == "*" && subtype != "*" {
		return AcceptElement{}, errors.Newf("wildcard type with concrete subtype %q", subtype)
	}

	elem := AcceptElement{Type: typ, Subtype: subtype, Q: 1.0}
	for _, param := range segments[1:] {
		kv := strings.Split(param, "=")
		if len(kv) != 2 {
			return AcceptElement{}, errors.Newf("parameter %q is not of the form key=value", param)
		}

		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key != "q" {
			if elem.Params == nil {
				elem.Params = map[string]string{}
			}
			elem.Params[key] = value
			continue
		}

		if !qvalue.MatchString(value) {
			return AcceptElement{}, errors.Newf("quality %q is not a decimal number", value)
		}

		q, err := strconv.ParseFloat(value, 64)
		if err != nil || q > 1 {
			return AcceptElement{}, errors.Newf("quality %q is not a number between 0 and 1", value)
		}
		elem.Q = q
	}

	return elem, nil
}

// AcceptableTypes ranks the known media types by the quality the client assigned to them.
type AcceptableTypes struct {
	elems   []AcceptElement
	mapping map[Type]float64
}

// NewAcceptableTypes parses the header, unknown media types are ignored.
func NewAcceptableTypes(header string) (*AcceptableTypes, error) {
	elems, err := ParseAccept(header)
	if err != nil {
		return nil, err
	}

	mapping := make(map[Type]float64, len(elems))
	for _, elem := range elems {
		t := Parse(elem.MediaRange())
		if t == Unspecified {
			continue
		}

		// elements are sorted by quality so the first one seen is the best one
		if _, ok := mapping[t]; !ok {
			mapping[t] = elem.Q
		}
	}

	return &AcceptableTypes{elems: elems, mapping: mapping}, nil
}

// Elements returns the parsed clauses, including the ones for unknown media types.
func (a *AcceptableTypes) Elements() []AcceptElement { return a.elems }

// IsAcceptable reports whether the header names the type, either explicitly or through a wildcard. The
// quality is not considered, a clause with q=0 still lists the type.
func (a *AcceptableTypes) IsAcceptable(t Type) bool {
	return a.lists(Any) || a.lists(t)
}

func (a *AcceptableTypes) lists(t Type) bool {
	_, ok := a.mapping[t]
	return ok
}

// MostAcceptableOf picks the candidate with the highest quality, the first candidate wins ties. If none of
// the candidates is listed but the client accepts anything, the first candidate is returned.
func (a *AcceptableTypes) MostAcceptableOf(candidates []Type) Type {
	best, bestQ := Unspecified, 0.0

	for _, c := range candidates {
		if q, ok := a.mapping[c]; ok && q > bestQ {
			best, bestQ = c, q
		}
	}

	if best != Unspecified {
		return best
	}

	if q := a.mapping[Any]; q > 0 && len(candidates) > 0 {
		return candidates[0]
	}

	return Unspecified
}

// Offer is what a resource can produce.
type Offer interface {
	// TypesAvailable lists the producible types, most preferred first.
	TypesAvailable() []Type
	// ResourceType is a type fixed by the request itself, e.g. through a file extension, or [Unspecified].
	ResourceType() Type
}

// ChooseBest negotiates the type to produce for the resource at path.
func ChooseBest(acceptHeader string, offer Offer, path string) (Type, error) {
	if strings.TrimSpace(acceptHeader) == "" {
		acceptHeader = "*/*"
	}

	acceptable, err := NewAcceptableTypes(acceptHeader)
	if err != nil {
		return Unspecified, osmhttp.NewError(osmhttp.CodeBadRequest, ErrMalformedAccept)
	}

	available := offer.TypesAvailable()

	if fixed := offer.ResourceType(); fixed != Unspecified {
		if !slices.Contains(available, fixed) || !acceptable.IsAcceptable(fixed) {
			return Unspecified, notAcceptable(path, available)
		}
		return fixed, nil
	}

	best := acceptable.MostAcceptableOf(available)
	switch {
	case best == Unspecified:
		return Unspecified, notAcceptable(path, available)
	case best == Any:
		return available[0], nil
	default:
		return best, nil
	}
}

func notAcceptable(path string, available []Type) error {
	names := lo.Map(available, func(t Type, _ int) string { return t.String() })
	return osmhttp.NewErrorf(osmhttp.CodeNotAcceptable,
		"Acceptable formats for %s are: %s", path, strings.Join(names, ", "))
}
