// Package digest adapts the stdlib and golang.org/x/crypto hash
// primitives to a single explicit interface, rather than the usual
// hash.Hash plus io.Writer convention: callers push bytes in and pull
// a fixed-width sum out, with no streaming operator overloads and no
// implicit state, mirroring the explicit push/pop style used for keys
// and wire payloads in this module.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/md4"
)

// Algorithm names a supported hash primitive.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
	MD5    Algorithm = "md5"
	MD4    Algorithm = "md4"
	MD2    Algorithm = "md2"
)

// Digest is an explicit reset/update/finalize hash state. OutputLen is
// the fixed width of Finalize's result, in bytes.
type Digest interface {
	Reset()
	Update(p []byte)
	Finalize() []byte
	OutputLen() int
}

// New constructs a Digest for the named algorithm. The zero value of
// Algorithm (and any unrecognized name) is rejected with an error
// rather than silently defaulting, since each Algorithm maps to
// exactly one constructor below.
func New(alg Algorithm) (Digest, error) {
	switch alg {
	case SHA1:
		return &hashDigest{h: sha1.New(), size: sha1.Size}, nil
	case SHA256:
		return &hashDigest{h: sha256.New(), size: sha256.Size}, nil
	case SHA384:
		return &hashDigest{h: sha512.New384(), size: sha512.Size384}, nil
	case SHA512:
		return &hashDigest{h: sha512.New(), size: sha512.Size}, nil
	case MD5:
		return &hashDigest{h: md5.New(), size: md5.Size}, nil
	case MD4:
		return &hashDigest{h: md4.New(), size: md4.Size}, nil
	case MD2:
		return newMD2(), nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// hashDigest adapts a stdlib/x-crypto hash.Hash (which exposes
// Write/Sum/Reset and mixes in io.Writer) to the Digest trait.
type hashDigest struct {
	h    hash.Hash
	size int
}

func (d *hashDigest) Reset()            { d.h.Reset() }
func (d *hashDigest) Update(p []byte)   { d.h.Write(p) }
func (d *hashDigest) Finalize() []byte  { return d.h.Sum(nil) }
func (d *hashDigest) OutputLen() int    { return d.size }
