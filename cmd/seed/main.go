// cmd/seed populates a development chain with example name claims.
//
// Running twice is safe: names already on the chain are skipped. To fully
// reset, delete the data directory:
//
//	rm -rf data/
//
// Usage:
//
//	go run ./cmd/seed
//	NAMECHAIN_DATA=/tmp/devchain go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/namechain-protocol/namechain/internal/keystore"
	"github.com/namechain-protocol/namechain/internal/ledger"
	"github.com/namechain-protocol/namechain/internal/miner"
)

// Low difficulty keeps seeding near-instant on any machine.
const seedDifficulty = 8

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

type seedClaim struct {
	name string
	data string
}

// Zones come first: a sub-name can only be claimed once its zone exists.
var claims = []seedClaim{
	{"acme", "org=Acme Industries"},
	{"mail.acme", "addr=10.0.1.25"},
	{"www.acme", "addr=10.0.1.80"},
	{"alice", "owner=alice"},
	{"blog.alice", "addr=10.0.2.15"},
	{"bob", "owner=bob"},
}

func run() error {
	dataDir := os.Getenv("NAMECHAIN_DATA")
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx := context.Background()

	keys, err := keystore.LoadOrCreate(filepath.Join(dataDir, "node.key"), os.Getenv("KEY_PASSPHRASE"))
	if err != nil {
		return fmt.Errorf("node key: %w", err)
	}

	ld, err := ledger.Open(ctx, ledger.Config{
		Path:         filepath.Join(dataDir, "chain.db"),
		ChainName:    "devnet",
		VersionFlags: 1,
	}, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ld.Close() //nolint:errcheck

	fmt.Printf("chain %q at height %d (%s)\n\n", ld.ChainName(), ld.Height(), filepath.Join(dataDir, "chain.db"))

	m := miner.New(ld, keys, miner.Config{Difficulty: seedDifficulty}, zap.NewNop())
	minerCtx, stopMiner := context.WithCancel(ctx)
	defer stopMiner()
	go m.Run(minerCtx)

	for _, c := range claims {
		// Re-runs: a name this key already holds needs no second block.
		if _, err := ld.Resolve(ctx, c.name); err == nil {
			fmt.Printf("  = %-12s already on chain, skipping\n", c.name)
			continue
		}

		job, err := m.Enqueue(ctx, c.name, "", c.data)
		if err != nil {
			return fmt.Errorf("enqueue %q: %w", c.name, err)
		}

		done, err := waitJob(m, job.ID)
		if err != nil {
			return fmt.Errorf("mine %q: %w", c.name, err)
		}
		if done.Status != miner.StatusDone {
			return fmt.Errorf("mine %q: %s", c.name, done.Error)
		}
		fmt.Printf("  ✓ %-12s claimed in block %d\n", c.name, done.BlockIndex)
	}

	fmt.Printf("\nseed complete: chain height %d\n", ld.Height())
	return nil
}

// waitJob polls until the job settles. Seeding mines sequentially, so each
// block lands within moments at the seed difficulty.
func waitJob(m *miner.Miner, id uuid.UUID) (*miner.Job, error) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Job(id)
		if err != nil {
			return nil, err
		}
		if job.Status == miner.StatusDone || job.Status == miner.StatusFailed {
			return job, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, fmt.Errorf("job %s did not finish in time", id)
}
