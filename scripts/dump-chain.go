//go:build ignore

// dump-chain.go prints every block of a namechain database as JSON lines,
// re-checking hashes and linkage while it walks. Diagnostics go to stderr so
// the block stream pipes cleanly into jq.
//
// Run with: go run scripts/dump-chain.go [path/to/chain.db]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/namechain-protocol/namechain/internal/chain"
	"github.com/namechain-protocol/namechain/internal/ledger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dump-chain: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := "data/chain.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no chain database at %s", path)
	}

	ctx := context.Background()
	ld, err := ledger.Open(ctx, ledger.Config{Path: path}, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer ld.Close() //nolint:errcheck

	height := ld.Height()
	fmt.Fprintf(os.Stderr, "chain %q, %d block(s)\n", ld.ChainName(), height)

	var prev *chain.Block
	broken := 0
	for i := uint64(1); i <= height; i++ {
		b, err := ld.Block(ctx, i)
		if err != nil {
			return fmt.Errorf("read block %d: %w", i, err)
		}
		if err := chain.Validate(b, prev); err != nil {
			fmt.Fprintf(os.Stderr, "block %d BROKEN: %v\n", i, err)
			broken++
		}
		line, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode block %d: %w", i, err)
		}
		fmt.Println(string(line))
		prev = b
	}

	if broken > 0 {
		return fmt.Errorf("%d broken block(s)", broken)
	}
	fmt.Fprintln(os.Stderr, "chain intact")
	return nil
}
