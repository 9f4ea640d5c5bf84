package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/namechain-protocol/namechain/pkg/client"
)

// ── Stub node ───────────────────────────────────────────────────────────

func stubNodeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/chain", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"chain_name":    "mainnet",
			"version_flags": 1,
			"height":        42,
			"tip_hash":      "ab12",
		})
	})

	mux.HandleFunc("/api/v1/chain/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"valid": true})
	})

	mux.HandleFunc("/api/v1/chain/blocks/", func(w http.ResponseWriter, r *http.Request) {
		index := strings.TrimPrefix(r.URL.Path, "/api/v1/chain/blocks/")
		if index == "99" {
			http.Error(w, `{"error":"block not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"index":           1,
			"timestamp":       1700000000,
			"chain_name":      "mainnet",
			"difficulty":      8,
			"nonce":           12345,
			"transaction":     nil,
			"prev_block_hash": "",
			"hash":            "00ab",
		})
	})

	mux.HandleFunc("/api/v1/names/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/names/")

		if strings.HasSuffix(rest, "/availability") {
			name := strings.TrimSuffix(rest, "/availability")
			json.NewEncoder(w).Encode(map[string]any{
				"name":      name,
				"pub_key":   r.URL.Query().Get("pub_key"),
				"available": name != "taken",
			})
			return
		}

		if rest == "ghost" {
			http.Error(w, `{"error":"name not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name": rest,
			"claim": map[string]any{
				"identity": "2bd806c9",
				"method":   "register",
				"data":     "addr=10.0.0.1",
				"pub_key":  "cafe",
			},
		})
	})

	mux.HandleFunc("/api/v1/claims", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			switch req["name"] {
			case "taken":
				http.Error(w, `{"error":"name is not available"}`, http.StatusConflict)
			case "UPPER":
				http.Error(w, `{"error":"invalid name"}`, http.StatusBadRequest)
			default:
				w.WriteHeader(http.StatusAccepted)
				json.NewEncoder(w).Encode(map[string]any{
					"id":     "550e8400-e29b-41d4-a716-446655440000",
					"name":   req["name"],
					"method": "register",
					"status": "pending",
				})
			}
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"claims": []map[string]any{
					{"id": "550e8400-e29b-41d4-a716-446655440000", "name": "alice", "status": "done"},
				},
			})
		}
	})

	mux.HandleFunc("/api/v1/claims/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/claims/")
		if id == "unknown-id" {
			http.Error(w, `{"error":"claim not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":          id,
			"name":        "alice",
			"status":      "done",
			"outcome":     "accepted",
			"block_index": 7,
		})
	})

	return httptest.NewServer(mux)
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestChainInfo(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	info, err := c.ChainInfo(context.Background())
	if err != nil {
		t.Fatalf("ChainInfo: %v", err)
	}
	if info.ChainName != "mainnet" {
		t.Errorf("unexpected chain name: %s", info.ChainName)
	}
	if info.Height != 42 {
		t.Errorf("unexpected height: %d", info.Height)
	}
}

func TestVerifyChain_valid(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	if err := c.VerifyChain(context.Background()); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
}

func TestVerifyChain_broken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"valid": false,
			"error": "block 3: hash mismatch",
		})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL)
	err := c.VerifyChain(context.Background())
	if !errors.Is(err, client.ErrChainInvalid) {
		t.Fatalf("expected ErrChainInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "block 3") {
		t.Errorf("error should carry the node's detail: %v", err)
	}
}

func TestBlockByIndex(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)

	block, err := c.BlockByIndex(context.Background(), 1)
	if err != nil {
		t.Fatalf("BlockByIndex: %v", err)
	}
	if block.Hash != "00ab" {
		t.Errorf("unexpected hash: %s", block.Hash)
	}
	if block.Transaction != nil {
		t.Errorf("expected empty block, got claim %+v", block.Transaction)
	}
}

func TestBlockByIndex_notFound(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.BlockByIndex(context.Background(), 99)
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)

	rec, err := c.Resolve(context.Background(), "mail.alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.Name != "mail.alice" {
		t.Errorf("unexpected name: %s", rec.Name)
	}
	if rec.Claim.Data != "addr=10.0.0.1" {
		t.Errorf("unexpected data: %s", rec.Claim.Data)
	}
}

func TestResolve_notFound(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.Resolve(context.Background(), "ghost")
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_cache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"name":  "alice",
			"claim": map[string]any{"identity": "aa", "method": "register"},
		})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithCacheTTL(5*time.Minute))

	c.Resolve(context.Background(), "alice") //nolint:errcheck
	c.Resolve(context.Background(), "alice") //nolint:errcheck

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 HTTP call (cached), got %d", n)
	}
}

func TestAvailability(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)

	a, err := c.Availability(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if !a.Available {
		t.Error("expected alice to be available")
	}

	a, err = c.Availability(context.Background(), "taken", "cafe")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if a.Available {
		t.Error("expected taken to be unavailable")
	}
	if a.PubKey != "cafe" {
		t.Errorf("pub_key not forwarded: %s", a.PubKey)
	}
}

func TestSubmitClaim(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)

	job, err := c.SubmitClaim(context.Background(), client.ClaimRequest{Name: "alice"})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}
	if job.ID == "" {
		t.Error("expected non-empty job ID")
	}
	if job.Status != client.ClaimPending {
		t.Errorf("unexpected status: %s", job.Status)
	}
}

func TestSubmitClaim_taken(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.SubmitClaim(context.Background(), client.ClaimRequest{Name: "taken"})
	if !errors.Is(err, client.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestSubmitClaim_invalid(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.SubmitClaim(context.Background(), client.ClaimRequest{Name: "UPPER"})
	if err == nil {
		t.Fatal("expected error for invalid name")
	}
	if !strings.Contains(err.Error(), "invalid") {
		t.Errorf("error should carry the node's message: %v", err)
	}
}

func TestClaimStatus(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)

	job, err := c.ClaimStatus(context.Background(), "550e8400-e29b-41d4-a716-446655440000")
	if err != nil {
		t.Fatalf("ClaimStatus: %v", err)
	}
	if job.Status != client.ClaimDone {
		t.Errorf("unexpected status: %s", job.Status)
	}
	if job.BlockIndex != 7 {
		t.Errorf("unexpected block index: %d", job.BlockIndex)
	}
}

func TestClaimStatus_notFound(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.ClaimStatus(context.Background(), "unknown-id")
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListClaims(t *testing.T) {
	srv := stubNodeServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)

	claims, err := c.ListClaims(context.Background())
	if err != nil {
		t.Fatalf("ListClaims: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(claims))
	}
	if claims[0].Name != "alice" {
		t.Errorf("unexpected claim name: %s", claims[0].Name)
	}
}

func TestWaitForClaim(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		status := "mining"
		if n >= 3 {
			status = "done"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "job-1",
			"name":        "alice",
			"status":      status,
			"block_index": 1,
		})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL)

	job, err := c.WaitForClaim(context.Background(), "job-1", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForClaim: %v", err)
	}
	if job.Status != client.ClaimDone {
		t.Errorf("unexpected status: %s", job.Status)
	}
	if polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls.Load())
	}
}

func TestWaitForClaim_contextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "status": "mining"})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.WaitForClaim(ctx, "job-1", 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestNew_requiresBaseURL(t *testing.T) {
	if _, err := client.New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestMustNew_panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustNew did not panic on empty base URL")
		}
	}()
	client.MustNew("")
}
