package capture

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Digest computes a collision-resistant, fixed-width hex digest over a
// payload. The concrete hash primitive is deliberately abstracted behind
// this interface: the core never hard-codes a cryptographic algorithm, so
// callers embedding this engine can swap in a stronger primitive without
// touching capture/ internals.
type Digest interface {
	Compute(payload []byte) string
}

// xxhashDigest is the default Digest implementation. xxhash is not
// cryptographically secure, but it is collision-resistant over the
// practical inputs this engine hashes (clipboard/search/doc text for
// dedup keys, not adversarial security boundaries), and it is already in
// the dependency graph transitively via modernc.org/sqlite.
type xxhashDigest struct{}

// NewDigest returns the default Digest implementation.
func NewDigest() Digest {
	return xxhashDigest{}
}

func (xxhashDigest) Compute(payload []byte) string {
	sum := xxhash.Sum64(payload)
	return fmt.Sprintf("%016x", sum)
}
