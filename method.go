package osmhttp

import (
	"net/http"
	"strings"
)

// Method is a set of http methods.
type Method uint8

const (
	MethodGet Method = 1 << iota
	MethodPost
	MethodPut
	MethodHead
	MethodOptions

	// MethodsRead is what read-only handlers allow.
	MethodsRead = MethodGet | MethodHead | MethodOptions
)

var methodNames = []struct {
	m    Method
	name string
}{
	{MethodGet, http.MethodGet},
	{MethodPost, http.MethodPost},
	{MethodPut, http.MethodPut},
	{MethodHead, http.MethodHead},
	{MethodOptions, http.MethodOptions},
}

// ParseMethod returns the method for the given name. Only the methods the API serves are known.
func ParseMethod(name string) (Method, bool) {
	for _, mn := range methodNames {
		if mn.name == name {
			return mn.m, true
		}
	}
	return 0, false
}

// Has reports whether all methods in o are part of the set.
func (m Method) Has(o Method) bool { return o != 0 && m&o == o }

// String lists the methods in the set, comma separated, as used for the Allow header.
func (m Method) String() string {
	names := make([]string, 0, len(methodNames))
	for _, mn := range methodNames {
		if m.Has(mn.m) {
			names = append(names, mn.name)
		}
	}
	return strings.Join(names, ", ")
}
