package chain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/namechain-protocol/namechain/internal/chain"
	"github.com/namechain-protocol/namechain/pkg/blob"
)

func sealedBlock(t *testing.T, tx *chain.Transaction) *chain.Block {
	t.Helper()
	b := chain.NewBlock(1, "testnet", 1, 8, chain.GenesisPrevHash, tx)
	b.Timestamp = 1700000000
	b.Random = 42
	b.Nonce = 7
	if err := b.SealHash(); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBlock_sealAndCheckHash(t *testing.T) {
	b := sealedBlock(t, nil)

	if len(b.Hash) != blob.HashLength {
		t.Fatalf("hash length: got %d, want %d", len(b.Hash), blob.HashLength)
	}
	if !b.CheckHash() {
		t.Error("CheckHash() = false on a freshly sealed block")
	}

	recomputed, err := b.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	if !recomputed.Equal(b.Hash) {
		t.Errorf("recomputed hash %s does not match sealed hash %s", recomputed, b.Hash)
	}
}

func TestBlock_hashSensitiveToEveryField(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*chain.Block)
	}{
		{"index", func(b *chain.Block) { b.Index++ }},
		{"timestamp", func(b *chain.Block) { b.Timestamp++ }},
		{"chain_name", func(b *chain.Block) { b.ChainName = "othernet" }},
		{"version_flags", func(b *chain.Block) { b.VersionFlags ^= 1 }},
		{"difficulty", func(b *chain.Block) { b.Difficulty++ }},
		{"random", func(b *chain.Block) { b.Random++ }},
		{"nonce", func(b *chain.Block) { b.Nonce++ }},
		{"transaction", func(b *chain.Block) {
			b.Transaction = chain.NewTransaction("alice", chain.MethodRegister, "", nil)
		}},
		{"prev_block_hash", func(b *chain.Block) { b.PrevBlockHash = blob.New([]byte{0xff}) }},
	}

	for _, tt := range tests {
		b := sealedBlock(t, nil)
		tt.mutate(b)
		if b.CheckHash() {
			t.Errorf("mutating %s did not invalidate the hash", tt.field)
		}
	}
}

func TestBlock_hashCoversTransactionContents(t *testing.T) {
	tx := chain.NewTransaction("alice", chain.MethodRegister, "v1", blob.New([]byte{1}))
	b := sealedBlock(t, tx)

	b.Transaction.Data = "v2"
	if b.CheckHash() {
		t.Error("mutating the embedded transaction did not invalidate the hash")
	}
}

func TestBlock_encodeExcludesHashWhenCleared(t *testing.T) {
	b := sealedBlock(t, nil)

	s, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s, `"hash":"`+b.Hash.String()+`"`) {
		t.Errorf("encoded block does not carry its hash: %s", s)
	}
	if !strings.HasPrefix(s, `{"index":`) {
		t.Errorf("canonical encoding must start with index: %s", s)
	}
	if !strings.Contains(s, `"transaction":null`) {
		t.Errorf("absent transaction must encode as null: %s", s)
	}
}

func TestBlock_encodeDecodeRoundTrip(t *testing.T) {
	tx := chain.NewTransaction("alice", chain.MethodRegister, "data", blob.New([]byte{1, 2}))
	b := sealedBlock(t, tx)

	s, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	back, err := chain.DecodeBlock(s)
	if err != nil {
		t.Fatal(err)
	}

	if back.Index != b.Index || back.Timestamp != b.Timestamp || back.ChainName != b.ChainName {
		t.Errorf("round trip header mismatch: got %+v, want %+v", back, b)
	}
	if !back.Hash.Equal(b.Hash) || !back.PrevBlockHash.Equal(b.PrevBlockHash) {
		t.Error("round trip hash fields mismatch")
	}
	if back.Transaction == nil || !back.Transaction.Identity.Equal(tx.Identity) {
		t.Error("round trip lost the embedded transaction")
	}
	if !back.CheckHash() {
		t.Error("decoded block fails its own hash check")
	}
}

func TestValidate_genesis(t *testing.T) {
	b := sealedBlock(t, nil)
	if err := chain.Validate(b, nil); err != nil {
		t.Errorf("Validate(genesis) = %v, want nil", err)
	}

	// Genesis linkage is never checked, only the self-hash.
	odd := chain.NewBlock(1, "testnet", 1, 8, blob.New([]byte{0xde, 0xad}), nil)
	if err := odd.SealHash(); err != nil {
		t.Fatal(err)
	}
	if err := chain.Validate(odd, nil); err != nil {
		t.Errorf("Validate(genesis with nonzero prev) = %v, want nil", err)
	}
}

func TestValidate_linkage(t *testing.T) {
	prev := sealedBlock(t, nil)

	next := chain.NewBlock(2, "testnet", 1, 8, prev.Hash, nil)
	next.Timestamp = 1700000100
	if err := next.SealHash(); err != nil {
		t.Fatal(err)
	}
	if err := chain.Validate(next, prev); err != nil {
		t.Errorf("Validate(linked block) = %v, want nil", err)
	}

	broken := chain.NewBlock(2, "testnet", 1, 8, blob.Zero(blob.HashLength), nil)
	broken.Timestamp = 1700000100
	if err := broken.SealHash(); err != nil {
		t.Fatal(err)
	}
	if err := chain.Validate(broken, prev); !errors.Is(err, chain.ErrLinkageMismatch) {
		t.Errorf("Validate(broken linkage) = %v, want ErrLinkageMismatch", err)
	}
}

func TestValidate_hashMismatch(t *testing.T) {
	b := sealedBlock(t, nil)
	b.Nonce++

	if err := chain.Validate(b, nil); !errors.Is(err, chain.ErrHashMismatch) {
		t.Errorf("Validate(corrupted block) = %v, want ErrHashMismatch", err)
	}
}
