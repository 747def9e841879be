// Package hasher hashes and verifies service keys.
package hasher

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/nexastudio/creditmeter/ports"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost.
// Out-of-range costs fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Cost returns the work factor used by Hash.
func (h *Bcrypt) Cost() int {
	return h.cost
}

// Hash generates a bcrypt hash of key.
func (h *Bcrypt) Hash(key string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), h.cost)
}

// Compare reports whether key matches hash.
func (h *Bcrypt) Compare(hash []byte, key string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil
}

var _ ports.KeyHasher = (*Bcrypt)(nil)

// Fake stores keys in plain text (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns key unchanged.
func (Fake) Hash(key string) ([]byte, error) {
	return []byte(key), nil
}

// Compare does simple equality check.
func (Fake) Compare(hash []byte, key string) bool {
	return string(hash) == key
}

var _ ports.KeyHasher = Fake{}
