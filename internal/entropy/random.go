// Package entropy supplies the randomness used for world seeding and
// registration. A seeded source gives reproducible runs; the crypto source
// is used when no seed is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"sync"
)

// Source is a concurrency-safe random number source.
type Source interface {
	Float64() float64
	Intn(n int) int
}

// Seeded is a deterministic source safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewSeeded returns a deterministic source. Seed 0 falls back to crypto.
func NewSeeded(seed int64) Source {
	if seed == 0 {
		return Crypto{}
	}
	return &Seeded{rng: mathrand.New(mathrand.NewSource(seed))}
}

// Float64 returns a value in [0, 1).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Intn returns a value in [0, n).
func (s *Seeded) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Crypto draws from crypto/rand.
type Crypto struct{}

// Float64 returns a value in [0, 1).
func (Crypto) Float64() float64 {
	return cryptoRandFloat()
}

// Intn returns a value in [0, n).
func (Crypto) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(cryptoRandFloat() * float64(n))
}

// Range returns a value in [lo, hi).
func Range(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// Pick returns a uniformly chosen element of values.
func Pick[T any](src Source, values []T) T {
	return values[src.Intn(len(values))]
}

func cryptoRandFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	// 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}
