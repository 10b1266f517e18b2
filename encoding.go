package osmhttp

import (
	"strconv"
	"strings"
)

// Encoding is a content encoding that can be applied to the response body.
type Encoding int

const (
	EncodingIdentity Encoding = iota
	EncodingDeflate
	EncodingGzip
)

func (e Encoding) String() string {
	switch e {
	case EncodingDeflate:
		return "deflate"
	case EncodingGzip:
		return "gzip"
	default:
		return "identity"
	}
}

// Wrap decorates the buffer so the bytes written to it are encoded.
func (e Encoding) Wrap(out OutputBuffer) OutputBuffer {
	switch e {
	case EncodingDeflate:
		return NewDeflateBuffer(out)
	case EncodingGzip:
		return NewGzipBuffer(out)
	default:
		return out
	}
}

// ChooseEncoding picks the content encoding given the value of an Accept-Encoding header. Deflate wins ties,
// then gzip, then identity. Identity is implicitly acceptable with a very low quality unless the header says
// otherwise.
func ChooseEncoding(acceptEncoding string) (Encoding, error) {
	if strings.TrimSpace(acceptEncoding) == "" {
		return EncodingIdentity, nil
	}

	identityQ, deflateQ, gzipQ := 0.001, 0.0, 0.0
	var identitySet, deflateSet, gzipSet bool

	for _, clause := range strings.Split(acceptEncoding, ",") {
		name, q, ok := parseCoding(clause)
		if !ok {
			continue
		}

		switch strings.ToLower(name) {
		case "identity":
			identityQ, identitySet = q, true
		case "deflate":
			deflateQ, deflateSet = q, true
		case "gzip", "x-gzip":
			gzipQ, gzipSet = q, true
		case "*":
			if !identitySet {
				identityQ = q
			}
			if !deflateSet {
				deflateQ = q
			}
			if !gzipSet {
				gzipQ = q
			}
		}
	}

	switch {
	case deflateQ > 0 && deflateQ >= gzipQ && deflateQ >= identityQ:
		return EncodingDeflate, nil
	case gzipQ > 0 && gzipQ >= identityQ:
		return EncodingGzip, nil
	case identityQ > 0:
		return EncodingIdentity, nil
	default:
		return EncodingIdentity, NewErrorf(CodeNotAcceptable,
			"No acceptable content encoding found. Only identity, deflate and gzip are supported.")
	}
}

// ParseContentEncoding maps a request's Content-Encoding header onto a supported encoding.
func ParseContentEncoding(contentEncoding string) (Encoding, bool) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return EncodingIdentity, true
	case "deflate":
		return EncodingDeflate, true
	case "gzip", "x-gzip":
		return EncodingGzip, true
	default:
		return EncodingIdentity, false
	}
}

func parseCoding(clause string) (name string, q float64, ok bool) {
	parts := strings.Split(clause, ";")

	name = strings.TrimSpace(parts[0])
	if name == "" {
		return "", 0, false
	}

	q = 1.0
	for _, param := range parts[1:] {
		key, value, found := strings.Cut(param, "=")
		if !found || strings.TrimSpace(key) != "q" {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || v < 0 || v > 1 {
			return "", 0, false
		}

		q = v
	}

	return name, q, true
}
