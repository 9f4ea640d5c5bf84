package chain

import (
	"crypto/sha256"

	"github.com/namechain-protocol/namechain/pkg/blob"
)

// Sum returns the SHA-256 digest of data. Every hash in the system goes
// through this one function: block content hashing and name identity
// hashing use the same primitive.
func Sum(data []byte) blob.Bytes {
	h := sha256.Sum256(data)
	return blob.New(h[:])
}

// HashIdentity maps a human-readable name to its identity hash. Storage
// and lookups only ever see this digest, never the plaintext name.
func HashIdentity(name string) blob.Bytes {
	return Sum([]byte(name))
}
