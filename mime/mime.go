// Package mime implements the closed set of media types the API can produce and the negotiation of
// those types against an Accept header.
package mime

// Type is a media type the API knows about.
type Type int

const (
	Unspecified Type = iota
	TextPlain
	ApplicationXML
	ApplicationJSON
	Any
)

func (t Type) String() string {
	switch t {
	case TextPlain:
		return "text/plain"
	case ApplicationXML:
		return "application/xml"
	case ApplicationJSON:
		return "application/json"
	case Any:
		return "*/*"
	default:
		return "unspecified/unspecified"
	}
}

// Parse maps a media range onto a known type, unknown ranges map to [Unspecified].
func Parse(name string) Type {
	switch name {
	case "*", "*/*", "text/*":
		return Any
	case "text/plain":
		return TextPlain
	case "text/xml", "application/xml":
		return ApplicationXML
	case "application/json":
		return ApplicationJSON
	default:
		return Unspecified
	}
}
