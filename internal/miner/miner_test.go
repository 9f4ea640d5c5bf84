package miner_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/namechain-protocol/namechain/internal/chain"
	"github.com/namechain-protocol/namechain/internal/keystore"
	"github.com/namechain-protocol/namechain/internal/ledger"
	"github.com/namechain-protocol/namechain/internal/miner"
)

var ctx = context.Background()

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(ctx, ledger.Config{
		Path:         filepath.Join(t.TempDir(), "chain.db"),
		ChainName:    "testnet",
		VersionFlags: 1,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// newRunningMiner starts a worker with a low difficulty so tests finish
// quickly while still exercising the nonce search.
func newRunningMiner(t *testing.T, l *ledger.Ledger, difficulty uint32) (*miner.Miner, *keystore.Keystore) {
	t.Helper()
	keys, err := keystore.Generate()
	if err != nil {
		t.Fatal(err)
	}
	m := miner.New(l, keys, miner.Config{Difficulty: difficulty}, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go m.Run(runCtx)
	return m, keys
}

func waitForJob(t *testing.T, m *miner.Miner, id uuid.UUID) *miner.Job {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		j, err := m.Job(id)
		if err != nil {
			t.Fatal(err)
		}
		if j.Status == miner.StatusDone || j.Status == miner.StatusFailed {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return nil
}

func TestEnqueue_rejectsInvalidName(t *testing.T) {
	l := newTestLedger(t)
	m, _ := newRunningMiner(t, l, 0)

	for _, name := range []string{"", "a.b.c", "UPPER", "sp ace"} {
		if _, err := m.Enqueue(ctx, name, "", ""); err == nil {
			t.Errorf("Enqueue(%q) succeeded, want error", name)
		}
	}
}

func TestEnqueue_rejectsTakenName(t *testing.T) {
	l := newTestLedger(t)
	m, _ := newRunningMiner(t, l, 0)

	// Someone else claims the name first.
	other, err := keystore.Generate()
	if err != nil {
		t.Fatal(err)
	}
	b := chain.NewBlock(1, "testnet", 1, 0, chain.GenesisPrevHash,
		chain.NewTransaction("alice", chain.MethodRegister, "", other.Public()))
	if err := b.SealHash(); err != nil {
		t.Fatal(err)
	}
	if outcome, err := l.Append(ctx, b); err != nil || !outcome.Accepted() {
		t.Fatalf("seed append: outcome %v, err %v", outcome, err)
	}

	if _, err := m.Enqueue(ctx, "alice", "", ""); !errors.Is(err, miner.ErrNameUnavailable) {
		t.Errorf("Enqueue(taken name): got %v, want ErrNameUnavailable", err)
	}
}

func TestMine_claimEndToEnd(t *testing.T) {
	l := newTestLedger(t)
	m, keys := newRunningMiner(t, l, 8)

	job, err := m.Enqueue(ctx, "alice", chain.MethodRegister, "addr=10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}

	done := waitForJob(t, m, job.ID)
	if done.Status != miner.StatusDone {
		t.Fatalf("job status: got %s (%s), want done", done.Status, done.Error)
	}
	if done.BlockIndex != 1 {
		t.Errorf("block index: got %d, want 1", done.BlockIndex)
	}

	tip := l.Tip()
	if tip == nil {
		t.Fatal("no tip after mined claim")
	}
	// Difficulty 8 means at least one leading zero byte.
	if tip.Hash[0] != 0 {
		t.Errorf("tip hash %s does not satisfy difficulty 8", tip.Hash)
	}
	if !tip.CheckHash() {
		t.Error("mined block fails its hash check")
	}
	if tip.Transaction == nil || !tip.Transaction.Identity.Equal(chain.HashIdentity("alice")) {
		t.Error("mined block does not carry the claim")
	}

	// The signed claim must verify against the node key.
	ok, err := keystore.VerifyTransaction(tip.Transaction)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("mined claim signature does not verify")
	}
	if !tip.Transaction.PubKey.Equal(keys.Public()) {
		t.Error("mined claim carries the wrong public key")
	}
}

func TestMine_sequentialJobsChain(t *testing.T) {
	l := newTestLedger(t)
	m, _ := newRunningMiner(t, l, 0)

	j1, err := m.Enqueue(ctx, "alice", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if done := waitForJob(t, m, j1.ID); done.Status != miner.StatusDone {
		t.Fatalf("first job: got %s (%s), want done", done.Status, done.Error)
	}

	// The zone now exists, so a subordinate name passes the pre-check.
	j2, err := m.Enqueue(ctx, "mail.alice", "", "")
	if err != nil {
		t.Fatal(err)
	}
	done := waitForJob(t, m, j2.ID)
	if done.Status != miner.StatusDone {
		t.Fatalf("second job: got %s (%s), want done", done.Status, done.Error)
	}
	if done.BlockIndex != 2 {
		t.Errorf("second block index: got %d, want 2", done.BlockIndex)
	}

	tip := l.Tip()
	b1, err := l.Block(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !tip.PrevBlockHash.Equal(b1.Hash) {
		t.Error("mined blocks are not hash-linked")
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("chain verify after mining: %v", err)
	}
}

func TestMine_cancellation(t *testing.T) {
	l := newTestLedger(t)
	keys, err := keystore.Generate()
	if err != nil {
		t.Fatal(err)
	}
	// 255 leading zero bits will never be found.
	m := miner.New(l, keys, miner.Config{Difficulty: 255}, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	go m.Run(runCtx)

	job, err := m.Enqueue(ctx, "alice", "", "")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := waitForJob(t, m, job.ID)
	if done.Status != miner.StatusFailed {
		t.Errorf("canceled job status: got %s, want failed", done.Status)
	}
	if l.Height() != 0 {
		t.Errorf("height after canceled mining: got %d, want 0", l.Height())
	}
}

func TestJob_notFound(t *testing.T) {
	l := newTestLedger(t)
	m, _ := newRunningMiner(t, l, 0)

	if _, err := m.Job(uuid.New()); !errors.Is(err, miner.ErrJobNotFound) {
		t.Errorf("Job(unknown): got %v, want ErrJobNotFound", err)
	}
}

func TestJobs_listsInSubmissionOrder(t *testing.T) {
	l := newTestLedger(t)
	m, _ := newRunningMiner(t, l, 0)

	j1, err := m.Enqueue(ctx, "alice", "", "")
	if err != nil {
		t.Fatal(err)
	}
	waitForJob(t, m, j1.ID)

	j2, err := m.Enqueue(ctx, "bob", "", "")
	if err != nil {
		t.Fatal(err)
	}
	waitForJob(t, m, j2.ID)

	jobs := m.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs: got %d, want 2", len(jobs))
	}
	if jobs[0].ID != j1.ID || jobs[1].ID != j2.ID {
		t.Error("jobs are not in submission order")
	}
}
