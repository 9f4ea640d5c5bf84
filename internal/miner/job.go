package miner

import (
	"time"

	"github.com/google/uuid"

	"github.com/namechain-protocol/namechain/internal/ledger"
)

// Status is the lifecycle state of a claim job.
type Status string

const (
	StatusPending Status = "pending"
	StatusMining  Status = "mining"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job tracks one enqueued claim from submission to its append outcome.
// Accessors on Miner hand out copies; the worker alone mutates the stored
// job.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Method    string    `json:"method"`
	Data      string    `json:"data"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// Set when the job finishes.
	FinishedAt  time.Time            `json:"finished_at,omitempty"`
	Outcome     ledger.AppendOutcome `json:"-"`
	OutcomeName string               `json:"outcome,omitempty"`
	BlockIndex  uint64               `json:"block_index,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// failWith marks the job failed before any append outcome exists, e.g. a
// canceled nonce search.
func (j *Job) failWith(msg string) {
	j.Status = StatusFailed
	j.Error = msg
	j.FinishedAt = time.Now()
}

// recordOutcome stores the ledger's verdict. An accepted block completes
// the job; a rejection fails it with the outcome as the reason.
func (j *Job) recordOutcome(outcome ledger.AppendOutcome, blockIndex uint64) {
	j.Outcome = outcome
	j.OutcomeName = outcome.String()
	j.FinishedAt = time.Now()
	if outcome.Accepted() {
		j.Status = StatusDone
		j.BlockIndex = blockIndex
		return
	}
	j.Status = StatusFailed
	j.Error = "block rejected: " + outcome.String()
}
