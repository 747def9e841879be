// Package random provides random sources and service key generation.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/nexastudio/creditmeter/ports"
)

// ServiceKeyPrefix marks generated service keys.
const ServiceKeyPrefix = "cmk_"

// serviceKeyBytes is the entropy of a generated key.
const serviceKeyBytes = 24

// ServiceKey returns a new service key drawn from src.
func ServiceKey(src ports.Random) (string, error) {
	b, err := src.Bytes(serviceKeyBytes)
	if err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return ServiceKeyPrefix + hex.EncodeToString(b), nil
}

// Real uses crypto/rand for secure randomness.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

var _ ports.Random = Real{}

// Fake provides deterministic randomness for testing.
type Fake struct {
	mu      sync.Mutex
	counter int
	values  [][]byte // returned in order before falling back to the counter
}

// NewFake creates a fake random source that returns values first.
func NewFake(values ...[]byte) *Fake {
	return &Fake{values: values}
}

// Bytes returns the next preset value, zero padded to n, or counter-derived bytes.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := make([]byte, n)
	if len(f.values) > 0 {
		copy(b, f.values[0])
		f.values = f.values[1:]
		return b, nil
	}

	f.counter++
	for i := range b {
		b[i] = byte((f.counter + i) % 256)
	}
	return b, nil
}

var _ ports.Random = (*Fake)(nil)
