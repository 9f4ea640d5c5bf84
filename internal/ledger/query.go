package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/namechain-protocol/namechain/internal/chain"
	"github.com/namechain-protocol/namechain/pkg/blob"
	"github.com/namechain-protocol/namechain/pkg/dname"
)

// IsDomainAvailable decides whether claimant may register name under
// first-write-wins rules with the two-level zone hierarchy.
//
// The most recent claim on the name decides ownership: if it carries a
// different public key the name is taken, while a claim by the same key
// leaves the name re-claimable by its owner. A name with a zone part is
// registrable only when the zone itself has at least one prior claim by
// anyone; the zone's owner is deliberately not consulted, so registration
// under any existing zone is open.
func (l *Ledger) IsDomainAvailable(ctx context.Context, name string, claimant blob.Bytes) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if name == "" {
		return false, nil
	}

	identity := chain.HashIdentity(name)
	var ownerKey []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT pub_key FROM transactions WHERE identity = ? ORDER BY id DESC LIMIT 1`,
		[]byte(identity),
	).Scan(&ownerKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Never claimed.
	case err != nil:
		return false, fmt.Errorf("query name claims: %w", err)
	case !blob.Bytes(ownerKey).Equal(claimant):
		return false, nil
	}

	label, zone, hasZone := dname.Split(name)
	if hasZone {
		// Anything left of the last separator must be a bare label.
		if strings.Contains(label, dname.Separator) {
			return false, nil
		}
		zoneIdentity := chain.HashIdentity(zone)
		var found []byte
		err := l.db.QueryRowContext(ctx,
			`SELECT identity FROM transactions WHERE identity = ? ORDER BY id DESC LIMIT 1`,
			[]byte(zoneIdentity),
		).Scan(&found)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// The parent zone must be registered first.
			return false, nil
		case err != nil:
			return false, fmt.Errorf("query zone claims: %w", err)
		}
		return true, nil
	}

	return true, nil
}

// Resolve returns the most recent claim transaction recorded for name.
func (l *Ledger) Resolve(ctx context.Context, name string) (*chain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	identity := chain.HashIdentity(name)
	t := &chain.Transaction{}
	var id, pubKey, sig []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT identity, method, data, pub_key, signature
		 FROM transactions WHERE identity = ? ORDER BY id DESC LIMIT 1`,
		[]byte(identity),
	).Scan(&id, &t.Method, &t.Data, &pubKey, &sig)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNameNotFound
	case err != nil:
		return nil, fmt.Errorf("resolve name: %w", err)
	}
	t.Identity = blob.New(id)
	t.PubKey = blob.New(pubKey)
	t.Signature = blob.New(sig)
	return t, nil
}

// Block reads one stored block by its chain index.
func (l *Ledger) Block(ctx context.Context, index uint64) (*chain.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRowContext(ctx,
		`SELECT id, timestamp, chain_name, version_flags, difficulty, random, nonce,
		        "transaction", prev_block_hash, hash
		 FROM blocks WHERE id = ? LIMIT 1`, int64(index))

	block, err := scanBlock(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrBlockNotFound
	case err != nil:
		return nil, fmt.Errorf("read block %d: %w", index, err)
	}
	return block, nil
}

// Verify walks every stored block oldest-first and re-validates self-hashes
// and linkage. Returns nil when the chain is intact. O(n) in chain length.
func (l *Ledger) Verify(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, timestamp, chain_name, version_flags, difficulty, random, nonce,
		        "transaction", prev_block_hash, hash
		 FROM blocks ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	var prev *chain.Block
	for rows.Next() {
		curr, err := scanBlock(rows)
		if err != nil {
			return fmt.Errorf("decode stored block: %w", err)
		}
		if err := chain.Validate(curr, prev); err != nil {
			return fmt.Errorf("chain broken at block %d: %w", curr.Index, err)
		}
		prev = curr
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("walk chain: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanBlock decodes one stored blocks row. The embedded transaction column
// holds the canonical serialization, or "" when the block carried none.
func scanBlock(row rowScanner) (*chain.Block, error) {
	var (
		index, timestamp, versionFlags, difficulty, random, nonce int64
		chainName, encodedTx                                      string
		prevHash, hash                                            []byte
	)
	if err := row.Scan(&index, &timestamp, &chainName, &versionFlags,
		&difficulty, &random, &nonce, &encodedTx, &prevHash, &hash); err != nil {
		return nil, err
	}

	b := &chain.Block{
		Index:         uint64(index),
		Timestamp:     timestamp,
		ChainName:     chainName,
		VersionFlags:  uint32(versionFlags),
		Difficulty:    uint32(difficulty),
		Random:        uint32(random),
		Nonce:         uint64(nonce),
		PrevBlockHash: blob.New(prevHash),
		Hash:          blob.New(hash),
	}
	if encodedTx != "" {
		t, err := chain.DecodeTransaction(encodedTx)
		if err != nil {
			return nil, fmt.Errorf("decode embedded transaction: %w", err)
		}
		b.Transaction = t
	}
	return b, nil
}
