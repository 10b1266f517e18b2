// Package osm holds the read-only projections of the geodata model that are materialized per request:
// nodes, ways, relations, changesets and the value objects that requests are validated into.
package osm
