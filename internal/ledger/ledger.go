// Package ledger owns the durable chain state: it validates and appends
// candidate blocks, mirrors them to an embedded SQLite store, and answers
// name-availability and resolution queries from the stored transaction
// history.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/namechain-protocol/namechain/internal/chain"
)

var (
	// ErrBlockNotFound is returned by Block for an index with no stored row.
	ErrBlockNotFound = errors.New("block not found")

	// ErrNameNotFound is returned by Resolve for a name with no claim history.
	ErrNameNotFound = errors.New("name not found")
)

// Config carries the parameters for opening a ledger. ChainName and
// VersionFlags seed a brand-new chain only: once blocks exist, the stored
// values win over configuration.
type Config struct {
	Path         string
	ChainName    string
	VersionFlags uint32
}

// Ledger is the single writer and reader of the chain store. It exclusively
// owns its database handle for its lifetime; all storage access goes through
// its methods. A single mutex serializes appends and queries so the cached
// tip and the durable store always advance together in program order.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *zap.Logger

	chainName    string
	versionFlags uint32

	// blocks caches the blocks accepted during this process run; the slice
	// is exactly the durably committed suffix produced since Open. History
	// from earlier runs stays on disk and is read on demand; only the tip
	// is rehydrated at startup.
	blocks []*chain.Block
	tip    *chain.Block
}

// Open opens (or creates) the chain store at cfg.Path, ensures the schema,
// and adopts the most recently stored block as the tip. A store that cannot
// be opened is an error; a malformed stored tip is logged and startup
// proceeds with an empty tip.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open chain store: %w", err)
	}
	// The ledger is the single writer and reader of its store.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("open chain store: %w", err)
	}

	l := &Ledger{
		db:           db,
		logger:       logger,
		chainName:    cfg.ChainName,
		versionFlags: cfg.VersionFlags,
	}
	if err := l.ensureSchema(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	if err := l.loadTip(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return l, nil
}

// Close releases the store handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS blocks (
		id BIGINT,
		timestamp BIGINT,
		chain_name TEXT,
		version_flags BIGINT,
		difficulty INTEGER,
		random INTEGER,
		nonce BIGINT,
		"transaction" TEXT,
		prev_block_hash BLOB,
		hash BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS block_index ON blocks (id)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity BLOB,
		method TEXT,
		data TEXT,
		pub_key BLOB,
		signature BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS ids ON transactions (identity)`,
}

func (l *Ledger) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// loadTip reads the most recently stored block and adopts it as the tip.
// Stored chain metadata wins over the configured values once a chain
// exists. A row that cannot be decoded leaves the ledger tipless but
// operational.
func (l *Ledger) loadTip(ctx context.Context) error {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, timestamp, chain_name, version_flags, difficulty, random, nonce,
		        "transaction", prev_block_hash, hash
		 FROM blocks ORDER BY id DESC LIMIT 1`)

	block, err := scanBlock(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		l.logger.Info("no existing chain in store, starting empty",
			zap.String("chain_name", l.chainName))
		return nil
	case err != nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("load chain tip: %w", err)
		}
		l.logger.Warn("stored tip block is malformed, starting without a tip", zap.Error(err))
		return nil
	}

	l.chainName = block.ChainName
	l.versionFlags = block.VersionFlags
	l.tip = block
	l.logger.Info("loaded chain tip from store",
		zap.Uint64("index", block.Index),
		zap.String("chain_name", l.chainName),
		zap.Uint32("version_flags", l.versionFlags),
		zap.String("hash", block.Hash.Short()),
	)
	return nil
}

// Append validates candidate against the current tip and, when it passes,
// durably records the block and its embedded transaction in one database
// transaction before advancing the in-memory tip. Rejections return a
// non-accepted outcome with a nil error and leave every piece of state
// untouched. A storage failure rolls back cleanly and returns an error.
func (l *Ledger) Append(ctx context.Context, candidate *chain.Block) (AppendOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := chain.Validate(candidate, l.tip); err != nil {
		outcome := AppendRejectedHashMismatch
		if errors.Is(err, chain.ErrLinkageMismatch) {
			outcome = AppendRejectedLinkage
		}
		l.logger.Warn("rejecting candidate block",
			zap.Uint64("index", candidate.Index),
			zap.String("reason", outcome.String()),
		)
		return outcome, nil
	}

	encodedTx := ""
	if candidate.Transaction != nil {
		s, err := candidate.Transaction.Encode()
		if err != nil {
			return AppendStorageFailure, fmt.Errorf("encode block transaction: %w", err)
		}
		encodedTx = s
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendStorageFailure, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// The block row goes first so no committed state ever holds a
	// transaction without its parent block.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blocks (id, timestamp, chain_name, version_flags, difficulty,
		                     random, nonce, "transaction", prev_block_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(candidate.Index), candidate.Timestamp, candidate.ChainName,
		int64(candidate.VersionFlags), int64(candidate.Difficulty),
		int64(candidate.Random), int64(candidate.Nonce),
		encodedTx, []byte(candidate.PrevBlockHash), []byte(candidate.Hash),
	); err != nil {
		return AppendStorageFailure, fmt.Errorf("insert block row: %w", err)
	}

	if t := candidate.Transaction; t != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (identity, method, data, pub_key, signature)
			 VALUES (?, ?, ?, ?, ?)`,
			[]byte(t.Identity), t.Method, t.Data, []byte(t.PubKey), []byte(t.Signature),
		); err != nil {
			return AppendStorageFailure, fmt.Errorf("insert transaction row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return AppendStorageFailure, fmt.Errorf("commit append: %w", err)
	}

	// Memory advances only after the commit so no caller can observe a tip
	// that is not yet durable.
	l.blocks = append(l.blocks, candidate)
	l.tip = candidate

	fields := []zap.Field{
		zap.Uint64("index", candidate.Index),
		zap.String("hash", candidate.Hash.Short()),
	}
	if candidate.Transaction != nil {
		fields = append(fields, zap.String("identity", candidate.Transaction.Identity.Short()))
	}
	l.logger.Info("block appended", fields...)
	return AppendAccepted, nil
}

// Tip returns the most recently accepted block, or nil for an empty chain.
func (l *Ledger) Tip() *chain.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip
}

// Height returns the index of the tip, or 0 for an empty chain.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tip == nil {
		return 0
	}
	return l.tip.Index
}

// ChainName returns the display name of the chain.
func (l *Ledger) ChainName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chainName
}

// VersionFlags returns the protocol feature bitmask of the chain.
func (l *Ledger) VersionFlags() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.versionFlags
}
