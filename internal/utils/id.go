package utils

import "github.com/oklog/ulid/v2"

// NewID returns a time sortable unique id
func NewID() string {
	return ulid.Make().String()
}
