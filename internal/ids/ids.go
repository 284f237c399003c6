// Package ids issues the identifiers used for registry rows and audit
// entries.
package ids

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// New returns a lexicographically sortable ULID. The random component comes
// from crypto/rand, so identifiers cannot be enumerated.
func New() string {
	return ulid.MustNew(ulid.Now(), entropy).String()
}
