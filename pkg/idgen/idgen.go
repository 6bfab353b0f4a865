// Package idgen generates lexicographically sortable unique identifiers.
package idgen

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID. ULIDs sort by creation time, which keeps event
// identifiers roughly ordered with the event log itself.
func NewID() string {
	return ulid.Make().String()
}
