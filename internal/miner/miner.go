// Package miner produces the candidate blocks the ledger consumes. Claims
// are queued as jobs; a single worker signs each claim, searches for a
// nonce satisfying the configured difficulty, and hands the sealed block to
// the ledger, recording the append outcome on the job.
package miner

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/namechain-protocol/namechain/internal/chain"
	"github.com/namechain-protocol/namechain/internal/keystore"
	"github.com/namechain-protocol/namechain/internal/ledger"
	"github.com/namechain-protocol/namechain/pkg/blob"
	"github.com/namechain-protocol/namechain/pkg/dname"
)

var (
	// ErrInvalidName means the name failed strict submission parsing.
	ErrInvalidName = errors.New("invalid name")

	// ErrNameUnavailable means the availability pre-check refused the claim.
	ErrNameUnavailable = errors.New("name is not available")

	// ErrQueueFull means the claim queue has no room for another job.
	ErrQueueFull = errors.New("claim queue is full")

	// ErrJobNotFound is returned by Job for an unknown id.
	ErrJobNotFound = errors.New("job not found")
)

const (
	defaultQueueSize = 64

	// How often the nonce loop polls for cancellation and re-stamps the
	// block timestamp.
	cancelCheckInterval = 4096
	restampInterval     = 1 << 20
)

// Config carries the miner parameters.
type Config struct {
	// Difficulty is the minimum number of leading zero bits a sealed
	// block's hash must have.
	Difficulty uint32

	// QueueSize bounds the number of jobs waiting for the worker.
	QueueSize int
}

// Miner owns the claim queue and the mining worker state.
type Miner struct {
	ledger *ledger.Ledger
	keys   *keystore.Keystore
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	jobs  map[uuid.UUID]*Job
	order []uuid.UUID
	queue chan *Job
}

// New builds a Miner. Run must be started for enqueued jobs to make
// progress.
func New(l *ledger.Ledger, keys *keystore.Keystore, cfg Config, logger *zap.Logger) *Miner {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Miner{
		ledger: l,
		keys:   keys,
		cfg:    cfg,
		logger: logger,
		jobs:   make(map[uuid.UUID]*Job),
		queue:  make(chan *Job, size),
	}
}

// Enqueue validates and queues a claim for name. The name must parse in
// its strict form and pass the availability check for the node's key at
// submission time; mining re-runs nothing, so a race with another claim is
// settled by the ledger when the block lands. An empty method defaults to
// a registration.
func (m *Miner) Enqueue(ctx context.Context, name, method, data string) (*Job, error) {
	if _, err := dname.Parse(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if method == "" {
		method = chain.MethodRegister
	}

	available, err := m.ledger.IsDomainAvailable(ctx, name, m.keys.Public())
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("name %q: %w", name, ErrNameUnavailable)
	}

	job := &Job{
		ID:        uuid.New(),
		Name:      name,
		Method:    method,
		Data:      data,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	// The queue slot and the job bookkeeping must be claimed together: a
	// full queue leaves no trace of the job.
	m.mu.Lock()
	select {
	case m.queue <- job:
		m.jobs[job.ID] = job
		m.order = append(m.order, job.ID)
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		return nil, ErrQueueFull
	}

	m.logger.Info("claim enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("method", method),
	)
	return m.snapshot(job.ID), nil
}

// Job returns a copy of the job with the given id.
func (m *Miner) Job(id uuid.UUID) (*Job, error) {
	j := m.snapshot(id)
	if j == nil {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// Jobs returns copies of all known jobs in submission order.
func (m *Miner) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.order))
	for _, id := range m.order {
		copy := *m.jobs[id]
		out = append(out, &copy)
	}
	return out
}

func (m *Miner) snapshot(id uuid.UUID) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	copy := *j
	return &copy
}

// Run processes queued jobs until ctx is canceled. One worker: blocks are
// mined and appended strictly in submission order.
func (m *Miner) Run(ctx context.Context) {
	m.logger.Info("miner started", zap.Uint32("difficulty", m.cfg.Difficulty))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("miner stopped")
			return
		case job := <-m.queue:
			m.mine(ctx, job)
		}
	}
}

func (m *Miner) mine(ctx context.Context, job *Job) {
	m.setStatus(job, StatusMining)
	start := time.Now()

	tx := chain.NewTransaction(job.Name, job.Method, job.Data, m.keys.Public())
	if err := m.keys.SignTransaction(tx); err != nil {
		m.finishFailure(job, fmt.Sprintf("sign claim: %v", err))
		return
	}

	block, err := m.sealBlock(ctx, tx)
	if err != nil {
		m.finishFailure(job, fmt.Sprintf("mine block: %v", err))
		return
	}
	ncpMiningDuration.Observe(time.Since(start).Seconds())

	outcome, err := m.ledger.Append(ctx, block)
	if err != nil {
		m.logger.Error("append failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		m.finishFailure(job, err.Error())
		return
	}

	if outcome.Accepted() {
		ncpBlocksAcceptedTotal.Inc()
		SetBlockHeight(block.Index)
	} else {
		ncpBlocksRejectedTotal.WithLabelValues(outcome.String()).Inc()
	}
	m.finishOutcome(job, outcome, block.Index)
	m.logger.Info("mining job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("outcome", outcome.String()),
		zap.Duration("took", time.Since(start)),
	)
}

// sealBlock builds the next block on the current tip and searches nonces
// until the hash clears the difficulty. The timestamp is re-stamped during
// long searches so it stays honest.
func (m *Miner) sealBlock(ctx context.Context, tx *chain.Transaction) (*chain.Block, error) {
	index := uint64(1)
	prev := chain.GenesisPrevHash
	if tip := m.ledger.Tip(); tip != nil {
		index = tip.Index + 1
		prev = tip.Hash
	}

	block := chain.NewBlock(index, m.ledger.ChainName(), m.ledger.VersionFlags(), m.cfg.Difficulty, prev, tx)
	random, err := randomUint32()
	if err != nil {
		return nil, err
	}
	block.Random = random

	for nonce := uint64(0); ; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		if nonce > 0 && nonce%restampInterval == 0 {
			block.Timestamp = time.Now().Unix()
		}

		block.Nonce = nonce
		hash, err := block.ComputeHash()
		if err != nil {
			return nil, err
		}
		if leadingZeroBits(hash) >= block.Difficulty {
			block.Hash = hash
			return block, nil
		}
	}
}

func (m *Miner) setStatus(job *Job, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = s
}

func (m *Miner) finishFailure(job *Job, msg string) {
	m.mu.Lock()
	job.failWith(msg)
	m.mu.Unlock()
	ncpMiningJobsTotal.WithLabelValues(string(StatusFailed)).Inc()
}

func (m *Miner) finishOutcome(job *Job, outcome ledger.AppendOutcome, blockIndex uint64) {
	m.mu.Lock()
	job.recordOutcome(outcome, blockIndex)
	status := job.Status
	m.mu.Unlock()
	ncpMiningJobsTotal.WithLabelValues(string(status)).Inc()
}

func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// leadingZeroBits counts the leading zero bits of h, the measure a sealed
// hash is judged by.
func leadingZeroBits(h blob.Bytes) uint32 {
	var n uint32
	for _, c := range h {
		if c == 0 {
			n += 8
			continue
		}
		n += uint32(bits.LeadingZeros8(c))
		break
	}
	return n
}
