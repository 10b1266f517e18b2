package mime_test

import (
	"testing"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/mime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for name, exp := range map[string]mime.Type{
		"*":                mime.Any,
		"*/*":              mime.Any,
		"text/plain":       mime.TextPlain,
		"text/*":           mime.Any,
		"text/xml":         mime.ApplicationXML,
		"application/xml":  mime.ApplicationXML,
		"application/json": mime.ApplicationJSON,
		"image/png":        mime.Unspecified,
	} {
		assert.Equal(t, exp, mime.Parse(name), name)
	}
}

func TestParseAccept(t *testing.T) {
	elems, err := mime.ParseAccept("text/html;level=1, application/json;q=0.5, *;q=0.1, application/xml")
	require.NoError(t, err)
	require.Len(t, elems, 4)

	require.Equal(t, "application/xml", elems[0].MediaRange())
	require.Equal(t, "text/html", elems[1].MediaRange())
	require.Equal(t, map[string]string{"level": "1"}, elems[1].Params)
	require.Equal(t, "application/json", elems[2].MediaRange())
	require.InDelta(t, 0.5, elems[2].Q, 1e-9)
	require.Equal(t, "*/*", elems[3].MediaRange())
}

func TestParseAcceptMalformed(t *testing.T) {
	for _, header := range []string{
		"",
		"text",
		"text/",
		"/xml",
		"*/xml",
		"text/plain;q",
		"text/plain;q=1=2",
		"text/plain;q=1.5",
		"text/plain;q=-0.1",
		"text/plain;q=abc",
		"text/plain;q=NaN",
		"text/plain;q=0x1p-1",
		"text/plain;q=1e0",
		"text/plain;q=+0.5",
		"text/plain;q=Inf",
		"text/plain, ,application/xml",
		"a/b/c",
	} {
		_, err := mime.ParseAccept(header)
		require.ErrorIs(t, err, mime.ErrMalformedAccept, header)
	}
}

func TestParseAcceptDecimalQuality(t *testing.T) {
	for value, exp := range map[string]float64{"1": 1, "0": 0, "0.5": 0.5, ".5": 0.5, "1.": 1, "0.001": 0.001} {
		elems, err := mime.ParseAccept("text/plain;q=" + value)
		require.NoError(t, err, value)
		assert.InDelta(t, exp, elems[0].Q, 1e-9, value)
	}
}

func TestIsAcceptableAny(t *testing.T) {
	for header, exp := range map[string]bool{
		"*/*":                        true,
		"*":                          true,
		"text/plain, *;q=0.2":        true,
		"text/plain":                 false,
		"application/xml, text/*":    true,
		"*/*;q=0":                    true,
		"application/xml":            false,
		"image/png, application/foo": false,
	} {
		at, err := mime.NewAcceptableTypes(header)
		require.NoError(t, err, header)
		assert.Equal(t, exp, at.IsAcceptable(mime.Any), header)
	}
}

func TestUnknownTypesAreDropped(t *testing.T) {
	at, err := mime.NewAcceptableTypes("image/png")
	require.NoError(t, err)
	require.Len(t, at.Elements(), 1)
	require.False(t, at.IsAcceptable(mime.ApplicationXML))
	require.Equal(t, mime.Unspecified, at.MostAcceptableOf([]mime.Type{mime.ApplicationXML, mime.ApplicationJSON}))
}

func TestMostAcceptableOf(t *testing.T) {
	xmlJSON := []mime.Type{mime.ApplicationXML, mime.ApplicationJSON}
	jsonXML := []mime.Type{mime.ApplicationJSON, mime.ApplicationXML}

	for _, tt := range []struct {
		header     string
		candidates []mime.Type
		exp        mime.Type
	}{
		{"*/*", xmlJSON, mime.ApplicationXML},
		{"*/*", jsonXML, mime.ApplicationJSON},
		{"application/json", xmlJSON, mime.ApplicationJSON},
		{"application/json;q=0.5, text/xml", xmlJSON, mime.ApplicationXML},
		{"application/json, application/xml", xmlJSON, mime.ApplicationXML},
		{"application/json, application/xml", jsonXML, mime.ApplicationJSON},
		{"application/json;q=0.2, */*", xmlJSON, mime.ApplicationJSON},
		{"text/plain", xmlJSON, mime.Unspecified},
		{"application/json;q=0", xmlJSON, mime.Unspecified},
		{"*/*;q=0", xmlJSON, mime.Unspecified},
		{"text/*", xmlJSON, mime.ApplicationXML},
		{"application/xml;q=0.1, text/xml;q=0.9, application/json;q=0.5", xmlJSON, mime.ApplicationXML},
	} {
		at, err := mime.NewAcceptableTypes(tt.header)
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.exp, at.MostAcceptableOf(tt.candidates), tt.header)
	}
}

func TestMostAcceptableOfEqualCandidates(t *testing.T) {
	at, err := mime.NewAcceptableTypes("application/xml;q=0.5, application/json;q=0.5")
	require.NoError(t, err)

	a := at.MostAcceptableOf([]mime.Type{mime.ApplicationXML, mime.ApplicationXML, mime.ApplicationJSON})
	b := at.MostAcceptableOf([]mime.Type{mime.ApplicationXML, mime.ApplicationJSON, mime.ApplicationXML})
	require.Equal(t, a, b)
	require.Equal(t, mime.ApplicationXML, a)
}

// offer is a fixed set of producible types.
type offer struct {
	available []mime.Type
	fixed     mime.Type
}

func (o offer) TypesAvailable() []mime.Type { return o.available }
func (o offer) ResourceType() mime.Type     { return o.fixed }

func TestChooseBest(t *testing.T) {
	osmOffer := offer{available: []mime.Type{mime.ApplicationXML, mime.ApplicationJSON}}

	for _, tt := range []struct {
		name    string
		header  string
		offer   offer
		exp     mime.Type
		expCode osmhttp.Code
	}{
		{"no header", "", osmOffer, mime.ApplicationXML, 0},
		{"wildcard", "*/*", osmOffer, mime.ApplicationXML, 0},
		{"json", "application/json", osmOffer, mime.ApplicationJSON, 0},
		{"text xml alias", "text/xml", osmOffer, mime.ApplicationXML, 0},
		{"not acceptable", "text/plain", osmOffer, 0, osmhttp.CodeNotAcceptable},
		{"text wildcard", "text/*", osmOffer, mime.ApplicationXML, 0},
		{"fixed listed with zero quality", "application/json;q=0", offer{osmOffer.available, mime.ApplicationJSON}, mime.ApplicationJSON, 0},
		{"malformed", "*/xml", osmOffer, 0, osmhttp.CodeBadRequest},
		{"fixed acceptable", "*/*", offer{osmOffer.available, mime.ApplicationJSON}, mime.ApplicationJSON, 0},
		{"fixed not acceptable", "application/xml", offer{osmOffer.available, mime.ApplicationJSON}, 0, osmhttp.CodeNotAcceptable},
		{"fixed not available", "*/*", offer{[]mime.Type{mime.ApplicationXML}, mime.ApplicationJSON}, 0, osmhttp.CodeNotAcceptable},
		{"text only", "*/*", offer{available: []mime.Type{mime.TextPlain}}, mime.TextPlain, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mime.ChooseBest(tt.header, tt.offer, "/api/0.6/node/1")
			if tt.expCode != 0 {
				require.Error(t, err)
				require.Equal(t, tt.expCode, osmhttp.CodeOf(err))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.exp, got)
		})
	}
}

func TestChooseBestNotAcceptableMessage(t *testing.T) {
	_, err := mime.ChooseBest("text/plain", offer{available: []mime.Type{mime.ApplicationXML, mime.ApplicationJSON}}, "/api/0.6/map")
	herr, ok := osmhttp.AsError(err)
	require.True(t, ok)
	require.Equal(t, "Acceptable formats for /api/0.6/map are: application/xml, application/json", herr.Message())
}
