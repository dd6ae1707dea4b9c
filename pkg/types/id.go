package types

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID. ULIDs are lexicographically sortable and
// carry a random component, which also makes them suitable as
// process-unique tool call ids.
func NewID() string {
	return ulid.Make().String()
}
