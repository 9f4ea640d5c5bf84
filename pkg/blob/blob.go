// Package blob provides the one byte-value type shared by every part of the
// chain: name identities, public keys, signatures, and block hashes are all
// carried as a Bytes value.
//
// Expected lengths are a convention, not a constraint: identities and hashes
// are 32 bytes (SHA-256 output), signatures are 64 bytes (Ed25519). The type
// deliberately does not enforce them; storage and validation treat a Bytes
// as opaque, and length checks belong to the layer that knows what the value
// means.
//
// The canonical serialization is a lowercase hex string; an empty Bytes
// encodes as "". Block hashing and the transaction codec both depend on this
// encoding, so it must stay stable across versions.
package blob

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Conventional lengths, documented for callers. Not enforced by the type.
const (
	// HashLength is the size of SHA-256 digests: block hashes and name
	// identities.
	HashLength = 32

	// SignatureLength is the size of Ed25519 signatures.
	SignatureLength = 64
)

// Bytes is an immutable-by-convention byte value. Constructors copy their
// input; holders must not mutate the backing slice afterwards.
type Bytes []byte

// New returns a Bytes holding a copy of b.
func New(b []byte) Bytes {
	out := make(Bytes, len(b))
	copy(out, b)
	return out
}

// Zero returns an all-zero Bytes of length n. Zero(SignatureLength) is the
// signature placeholder carried by unsigned transactions.
func Zero(n int) Bytes {
	return make(Bytes, n)
}

// FromHex decodes a lowercase or uppercase hex string into a Bytes.
func FromHex(s string) (Bytes, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return Bytes(b), nil
}

// MustHex decodes a hex string and panics on error. Useful in tests.
func MustHex(s string) Bytes {
	b, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Equal reports whether b and other hold the same bytes.
func (b Bytes) Equal(other Bytes) bool {
	return bytes.Equal(b, other)
}

// IsZero reports whether b carries no information: either zero length or all
// bytes zero. A placeholder signature is IsZero; a real one is not.
func (b Bytes) IsZero() bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// String returns the full lowercase hex encoding. An empty Bytes renders "".
func (b Bytes) String() string {
	return hex.EncodeToString(b)
}

// Short returns an abbreviated hex form for log lines.
func (b Bytes) Short() string {
	s := b.String()
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}

// MarshalJSON encodes b as a lowercase hex JSON string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes a hex JSON string. null leaves b empty.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("blob must be a hex string: %w", err)
	}
	if s == "" {
		*b = nil
		return nil
	}
	decoded, err := FromHex(s)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}
