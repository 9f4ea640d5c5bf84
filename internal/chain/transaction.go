package chain

import (
	"encoding/json"
	"fmt"

	"github.com/namechain-protocol/namechain/pkg/blob"
)

// Conventional method tags for claim transactions.
const (
	MethodRegister = "register"
	MethodUpdate   = "update"
)

// Transaction is a single identity-claim record. The claimed name never
// appears in plaintext; Identity carries its SHA-256 digest, which still
// allows exact-match ownership lookups.
//
// Field order is part of the canonical encoding and must not change.
type Transaction struct {
	Identity  blob.Bytes `json:"identity"`
	Method    string     `json:"method"`
	Data      string     `json:"data"`
	PubKey    blob.Bytes `json:"pub_key"`
	Signature blob.Bytes `json:"signature"`
}

// NewTransaction builds a claim for name, hashing it into the identity
// form. The signature starts as a zero placeholder and is attached later
// via SetSignature.
func NewTransaction(name, method, data string, pubKey blob.Bytes) *Transaction {
	return &Transaction{
		Identity:  HashIdentity(name),
		Method:    method,
		Data:      data,
		PubKey:    pubKey,
		Signature: blob.Zero(blob.SignatureLength),
	}
}

// SetSignature attaches the claimant's signature.
func (t *Transaction) SetSignature(sig blob.Bytes) {
	t.Signature = sig
}

// Encode returns the canonical string serialization of t. The same bytes
// are used for storage and for hash computation, so the encoding must stay
// deterministic and stable across versions.
func (t *Transaction) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	return string(data), nil
}

// DecodeTransaction parses a canonical serialization produced by Encode.
func DecodeTransaction(s string) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &t, nil
}
