// Package key implements fixed-width ring arithmetic over N-bit
// identifiers: the Chord key space shared by node identities and
// stored items. N is a runtime parameter (a Space), not a Go type
// parameter, so a process can run a 32-bit test ring and a 160-bit
// deployment ring using the same code.
package key

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/meshring/chordnode/digest"
)

// Canonical ring widths: 32 bits for a local test ring, 160 bits for a
// deployment-sized ring (SHA1-width identifiers).
const (
	Bits32  = 32
	Bits160 = 160
)

// Space is an N-bit ring: the modulus every Key arithmetic operation
// reduces against. Keys from different Spaces must never be compared;
// doing so panics rather than silently producing a meaningless answer.
type Space struct {
	bits uint
	mod  *big.Int // 2^bits, nil when bits <= 64 (fast path uses wraparound instead)
}

// NewSpace constructs an N-bit ring. bits must be > 0.
func NewSpace(bits uint) *Space {
	if bits == 0 {
		panic("key: Space bits must be > 0")
	}
	s := &Space{bits: bits}
	if bits > 64 {
		s.mod = new(big.Int).Lsh(big.NewInt(1), bits)
	}
	return s
}

// Bits returns the ring's width in bits.
func (s *Space) Bits() uint { return s.bits }

func (s *Space) fast() bool { return s.bits <= 64 }

func (s *Space) mask64() uint64 {
	if s.bits == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << s.bits) - 1
}

// Key is an element of a Space's ring.
type Key struct {
	space *Space
	small uint64
	big   *big.Int
}

func (s *Space) checkOwn(k Key) {
	if k.space != s {
		panic("key: Key from a different Space")
	}
}

// Zero returns the additive identity of s.
func (s *Space) Zero() Key { return Key{space: s} }

// FromUint64 constructs a Key from a plain integer, reduced mod 2^bits.
func (s *Space) FromUint64(v uint64) Key {
	if s.fast() {
		return Key{space: s, small: v & s.mask64()}
	}
	b := new(big.Int).SetUint64(v)
	b.Mod(b, s.mod)
	return Key{space: s, big: b}
}

// FromBytes constructs a Key from a big-endian byte string, truncating
// or zero-extending on the left to fit the ring's width.
func (s *Space) FromBytes(b []byte) Key {
	v := new(big.Int).SetBytes(b)
	if s.fast() {
		v.And(v, new(big.Int).SetUint64(s.mask64()))
		return Key{space: s, small: v.Uint64()}
	}
	v.Mod(v, s.mod)
	return Key{space: s, big: v}
}

// FromDigest consumes the digest's finalized output (truncating the
// most-significant bytes if it is wider than the ring, zero-extending
// on the left if narrower) to produce a Key. This is how node
// identities and stored-item keys are derived from a hash of some
// seed (an endpoint, a user-chosen name) per the ring's configured
// width.
func FromDigest(s *Space, d digest.Digest) Key {
	sum := d.Finalize()
	return s.FromBytes(sum)
}

// Random returns a uniformly random Key in s.
func (s *Space) Random() (Key, error) {
	if s.fast() {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return Key{}, err
		}
		v := uint64(0)
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
		return Key{space: s, small: v & s.mask64()}, nil
	}
	v, err := rand.Int(rand.Reader, s.mod)
	if err != nil {
		return Key{}, err
	}
	return Key{space: s, big: v}, nil
}

// Space returns the Key's owning ring.
func (k Key) Space() *Space { return k.space }

// Equal reports whether k and other denote the same ring position.
func (k Key) Equal(other Key) bool {
	if k.space != other.space {
		panic("key: comparing Keys from different Spaces")
	}
	if k.space.fast() {
		return k.small == other.small
	}
	return k.toBig().Cmp(other.toBig()) == 0
}

func (k Key) toBig() *big.Int {
	if k.big != nil {
		return k.big
	}
	return new(big.Int).SetUint64(k.small)
}

// Add2Pow returns k + 2^i (mod 2^N) — the Start of the i'th finger.
func (k Key) Add2Pow(i uint) Key {
	s := k.space
	if s.fast() {
		if i >= 64 {
			return Key{space: s, small: k.small}
		}
		return Key{space: s, small: (k.small + (uint64(1) << i)) & s.mask64()}
	}
	delta := new(big.Int).Lsh(big.NewInt(1), i)
	v := new(big.Int).Add(k.toBig(), delta)
	v.Mod(v, s.mod)
	return Key{space: s, big: v}
}

// Distance computes d(k, other) = (other - k) mod 2^N: the clockwise
// distance from k to other on the ring.
func (k Key) Distance(other Key) Key {
	s := k.space
	s.checkOwn(other)
	if s.fast() {
		return Key{space: s, small: (other.small - k.small) & s.mask64()}
	}
	v := new(big.Int).Sub(other.toBig(), k.toBig())
	v.Mod(v, s.mod)
	return Key{space: s, big: v}
}

// cmpDistance compares k's magnitude against other's, both assumed to
// already be ring distances from a common origin.
func (k Key) cmpDistance(other Key) int {
	if k.space.fast() {
		switch {
		case k.small < other.small:
			return -1
		case k.small > other.small:
			return 1
		default:
			return 0
		}
	}
	return k.toBig().Cmp(other.toBig())
}

// RingLess reports whether a is closer to origin (walking clockwise)
// than b is: d(origin,a) < d(origin,b). This is the total order used
// throughout routing comparisons (closest-preceding-node scans,
// successor selection).
func RingLess(origin, a, b Key) bool {
	da := origin.Distance(a)
	db := origin.Distance(b)
	return da.cmpDistance(db) < 0
}

// InOpenInterval reports whether k lies strictly between a and b,
// walking clockwise from a (exclusive) to b (exclusive). When a == b
// every key other than a is considered inside (a full circle minus
// the single excluded point).
func InOpenInterval(k, a, b Key) bool {
	if a.Equal(b) {
		return !k.Equal(a)
	}
	da := a.Distance(k)
	db := a.Distance(b)
	return !da.IsZero() && da.cmpDistance(db) < 0
}

// InHalfOpenInterval reports whether k lies in (a, b], walking
// clockwise from a (exclusive) to b (inclusive). When a == b, every
// key other than a is considered inside.
func InHalfOpenInterval(k, a, b Key) bool {
	if a.Equal(b) {
		return !k.Equal(a)
	}
	da := a.Distance(k)
	db := a.Distance(b)
	return !da.IsZero() && da.cmpDistance(db) <= 0
}

// IsZero reports whether k is the ring's additive identity.
func (k Key) IsZero() bool {
	if k.space.fast() {
		return k.small == 0
	}
	return k.toBig().Sign() == 0
}

// Bytes renders k as a big-endian byte string of ceil(bits/8) length.
func (k Key) Bytes() []byte {
	n := (k.space.bits + 7) / 8
	out := make([]byte, n)
	k.toBig().FillBytes(out)
	return out
}

// Hex renders k as a lowercase, zero-padded hex string.
func (k Key) Hex() string {
	return fmt.Sprintf("%0*x", (k.space.bits+3)/4, k.toBig())
}

func (k Key) String() string { return k.Hex() }
