// Package chain defines the block and transaction data model of the
// ledger: canonical serialization, SHA-256 content hashing with the
// self-referential hash field excluded, and the validation rule that
// links each block to its predecessor.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/namechain-protocol/namechain/pkg/blob"
)

// Validation failures for candidate blocks.
var (
	// ErrHashMismatch means the block's stored hash does not match the
	// hash recomputed from its contents.
	ErrHashMismatch = errors.New("block hash mismatch")

	// ErrLinkageMismatch means the block's prev_block_hash does not match
	// the hash of the block it claims to follow.
	ErrLinkageMismatch = errors.New("block linkage mismatch")
)

// GenesisPrevHash is the conventional prev_block_hash of the first block.
// Validation never inspects it (the genesis case has no predecessor to
// link to), but producers fill it in so every block looks alike on disk.
var GenesisPrevHash = blob.Zero(blob.HashLength)

// Block is one element of the chain. The proof-of-work fields
// (Difficulty, Random, Nonce) are produced by the miner and stored as-is;
// validation does not re-derive the work.
//
// Field order is part of the canonical encoding and must not change.
type Block struct {
	Index         uint64       `json:"index"`
	Timestamp     int64        `json:"timestamp"`
	ChainName     string       `json:"chain_name"`
	VersionFlags  uint32       `json:"version_flags"`
	Difficulty    uint32       `json:"difficulty"`
	Random        uint32       `json:"random"`
	Nonce         uint64       `json:"nonce"`
	Transaction   *Transaction `json:"transaction"`
	PrevBlockHash blob.Bytes   `json:"prev_block_hash"`
	Hash          blob.Bytes   `json:"hash"`
}

// NewBlock assembles an unsealed block with the current time as its
// timestamp. The caller fills in Random and Nonce and then seals the hash.
func NewBlock(index uint64, chainName string, versionFlags, difficulty uint32, prevHash blob.Bytes, tx *Transaction) *Block {
	return &Block{
		Index:         index,
		Timestamp:     time.Now().Unix(),
		ChainName:     chainName,
		VersionFlags:  versionFlags,
		Difficulty:    difficulty,
		Transaction:   tx,
		PrevBlockHash: prevHash,
	}
}

// ComputeHash returns the hash of the block's canonical serialization with
// the Hash field held at its zero value. The hash field cannot take part
// in what it hashes.
func (b *Block) ComputeHash() (blob.Bytes, error) {
	copy := *b
	copy.Hash = nil
	data, err := json.Marshal(&copy)
	if err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}
	return Sum(data), nil
}

// SealHash computes the block's hash and stores it in the Hash field.
func (b *Block) SealHash() error {
	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.Hash = hash
	return nil
}

// CheckHash reports whether the stored Hash matches the recomputed one.
func (b *Block) CheckHash() bool {
	hash, err := b.ComputeHash()
	if err != nil {
		return false
	}
	return hash.Equal(b.Hash)
}

// Encode returns the canonical string serialization of the whole block,
// including its Hash field.
func (b *Block) Encode() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode block: %w", err)
	}
	return string(data), nil
}

// DecodeBlock parses a canonical serialization produced by Encode.
func DecodeBlock(s string) (*Block, error) {
	var b Block
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &b, nil
}

// Validate decides whether candidate may extend the chain after previous.
// A nil previous is the genesis case: the self-hash must still check out,
// but there is no linkage to verify and PrevBlockHash content is ignored.
// Proof-of-work and transaction signatures are not re-verified here.
func Validate(candidate, previous *Block) error {
	if !candidate.CheckHash() {
		return ErrHashMismatch
	}
	if previous == nil {
		return nil
	}
	if !candidate.PrevBlockHash.Equal(previous.Hash) {
		return ErrLinkageMismatch
	}
	return nil
}
