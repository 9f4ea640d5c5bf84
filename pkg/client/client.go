// Package client provides the Namechain Go SDK for talking to a namechaind
// node: chain inspection, name resolution, availability checks, and claim
// submission.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when the node has no record for the requested
// name, block, or claim.
var ErrNotFound = errors.New("not found")

// ErrNameTaken is returned by SubmitClaim when the name is already claimed
// under a different key.
var ErrNameTaken = errors.New("name already claimed")

// ErrNodeBusy is returned by SubmitClaim when the node's mining queue is
// full. Retry after a short delay.
var ErrNodeBusy = errors.New("node mining queue is full")

// ErrChainInvalid is returned by VerifyChain when the node reports a broken
// hash or linkage somewhere in its stored chain.
var ErrChainInvalid = errors.New("chain verification failed")

// ChainInfo is the node's chain metadata returned by GET /api/v1/chain.
type ChainInfo struct {
	ChainName    string `json:"chain_name"`
	VersionFlags uint32 `json:"version_flags"`
	Height       uint64 `json:"height"`
	TipHash      string `json:"tip_hash"`
}

// Claim is one registration transaction as stored on the chain. Identity,
// PubKey, and Signature are lowercase hex strings.
type Claim struct {
	Identity  string `json:"identity"`
	Method    string `json:"method"`
	Data      string `json:"data"`
	PubKey    string `json:"pub_key"`
	Signature string `json:"signature"`
}

// Block is one block as returned by GET /api/v1/chain/blocks/:index.
// Hash fields are lowercase hex strings.
type Block struct {
	Index         uint64 `json:"index"`
	Timestamp     int64  `json:"timestamp"`
	ChainName     string `json:"chain_name"`
	VersionFlags  uint32 `json:"version_flags"`
	Difficulty    uint32 `json:"difficulty"`
	Random        uint32 `json:"random"`
	Nonce         uint64 `json:"nonce"`
	Transaction   *Claim `json:"transaction"`
	PrevBlockHash string `json:"prev_block_hash"`
	Hash          string `json:"hash"`
}

// NameRecord is the latest claim bound to a name.
type NameRecord struct {
	Name  string `json:"name"`
	Claim Claim  `json:"claim"`
}

// Availability is the node's answer to an availability check. PubKey is the
// key the check was evaluated against.
type Availability struct {
	Name      string `json:"name"`
	PubKey    string `json:"pub_key"`
	Available bool   `json:"available"`
}

// ClaimRequest is the payload for SubmitClaim. Name is required; Method
// defaults to "register" on the node.
type ClaimRequest struct {
	Name   string `json:"name"`
	Method string `json:"method,omitempty"`
	Data   string `json:"data,omitempty"`
}

// Claim job lifecycle states as reported by the node.
const (
	ClaimPending = "pending"
	ClaimMining  = "mining"
	ClaimDone    = "done"
	ClaimFailed  = "failed"
)

// ClaimJob tracks a submitted claim through mining to its final outcome.
type ClaimJob struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Method     string    `json:"method"`
	Data       string    `json:"data"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	BlockIndex uint64    `json:"block_index,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Finished reports whether the job has reached a terminal state.
func (j *ClaimJob) Finished() bool {
	return j.Status == ClaimDone || j.Status == ClaimFailed
}

// Client is the Namechain SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *resolveCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, e.g. for TLS configuration when
// the node sits behind an HTTPS proxy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout. The default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// WithCacheTTL enables in-memory caching of Resolve results with the given
// TTL. Claims are append-only, so a short TTL only delays visibility of
// key-rotation updates, never of ownership.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newResolveCache(ttl)
		return nil
	}
}

// New creates a Namechain SDK Client connected to the node at baseURL.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithCacheTTL(30*time.Second),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("node base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// ChainInfo fetches the node's chain metadata and current tip.
func (c *Client) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	body, err := c.get(ctx, "/api/v1/chain")
	if err != nil {
		return nil, err
	}
	var info ChainInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode chain info: %w", err)
	}
	return &info, nil
}

// VerifyChain asks the node to re-verify every stored block. It returns nil
// when the chain is intact and an error wrapping ErrChainInvalid when the
// node reports a broken block.
func (c *Client) VerifyChain(ctx context.Context) error {
	body, err := c.get(ctx, "/api/v1/chain/verify")
	if err != nil {
		return err
	}
	var result struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode verify response: %w", err)
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrChainInvalid, result.Error)
	}
	return nil
}

// BlockByIndex fetches a single block. Indexes start at 1; unknown indexes
// return an error wrapping ErrNotFound.
func (c *Client) BlockByIndex(ctx context.Context, index uint64) (*Block, error) {
	body, err := c.get(ctx, "/api/v1/chain/blocks/"+strconv.FormatUint(index, 10))
	if err != nil {
		return nil, err
	}
	var block Block
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &block, nil
}

// Resolve fetches the latest claim bound to name. Unclaimed names return an
// error wrapping ErrNotFound.
func (c *Client) Resolve(ctx context.Context, name string) (*NameRecord, error) {
	if c.cache != nil {
		if rec, ok := c.cache.get(name); ok {
			return rec, nil
		}
	}

	body, err := c.get(ctx, "/api/v1/names/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	var rec NameRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode name record: %w", err)
	}

	if c.cache != nil {
		c.cache.set(name, &rec)
	}
	return &rec, nil
}

// Availability asks whether name could be claimed. pubKeyHex selects the
// prospective claimant's key; pass "" to evaluate against the node's own key.
func (c *Client) Availability(ctx context.Context, name, pubKeyHex string) (*Availability, error) {
	path := "/api/v1/names/" + url.PathEscape(name) + "/availability"
	if pubKeyHex != "" {
		path += "?pub_key=" + url.QueryEscape(pubKeyHex)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var result Availability
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	return &result, nil
}

// SubmitClaim enqueues a claim for mining and returns the accepted job.
// The claim is not on the chain yet: poll ClaimStatus or use WaitForClaim.
func (c *Client) SubmitClaim(ctx context.Context, claim ClaimRequest) (*ClaimJob, error) {
	payload, err := json.Marshal(claim)
	if err != nil {
		return nil, fmt.Errorf("marshal claim: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/claims", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusAccepted:
		var job ClaimJob
		if err := json.Unmarshal(body, &job); err != nil {
			return nil, fmt.Errorf("decode claim job: %w", err)
		}
		return &job, nil
	case http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, apiError(body))
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %s", ErrNodeBusy, apiError(body))
	case http.StatusBadRequest:
		return nil, fmt.Errorf("invalid claim: %s", apiError(body))
	default:
		return nil, fmt.Errorf("server error %d: %s", status, string(body))
	}
}

// ClaimStatus fetches the current state of a claim job by ID.
func (c *Client) ClaimStatus(ctx context.Context, id string) (*ClaimJob, error) {
	body, err := c.get(ctx, "/api/v1/claims/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var job ClaimJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode claim job: %w", err)
	}
	return &job, nil
}

// ListClaims returns every claim job the node remembers, oldest first.
func (c *Client) ListClaims(ctx context.Context) ([]ClaimJob, error) {
	body, err := c.get(ctx, "/api/v1/claims")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Claims []ClaimJob `json:"claims"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	return wrapper.Claims, nil
}

// WaitForClaim polls ClaimStatus every interval until the job reaches a
// terminal state or ctx is done. An interval of 0 polls every 500 ms.
// The returned job may have Status ClaimFailed; that is not an error here.
func (c *Client) WaitForClaim(ctx context.Context, id string, interval time.Duration) (*ClaimJob, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	job, err := c.ClaimStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Finished() {
		return job, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			job, err := c.ClaimStatus(ctx, id)
			if err != nil {
				return nil, err
			}
			if job.Finished() {
				return job, nil
			}
		}
	}
}

// get executes a GET request against the node and returns the body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// do executes an HTTP request and maps error statuses.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// doStatusBody is a lower-level HTTP call that returns (statusCode, body, error)
// without failing on 4xx responses. The caller interprets the status code.
func (c *Client) doStatusBody(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// apiError extracts the node's {"error": "..."} message, falling back to the
// raw body.
func apiError(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(body)
}

// --- simple in-memory resolve cache ---

type cacheEntry struct {
	record    *NameRecord
	expiresAt time.Time
}

type resolveCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newResolveCache(ttl time.Duration) *resolveCache {
	return &resolveCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (rc *resolveCache) get(key string) (*NameRecord, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	e, ok := rc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.record, true
}

func (rc *resolveCache) set(key string, record *NameRecord) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[key] = &cacheEntry{record: record, expiresAt: time.Now().Add(rc.ttl)}
}
