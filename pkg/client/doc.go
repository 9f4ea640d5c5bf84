// Package client is the Namechain Go SDK.
//
// It wraps a namechaind node's HTTP API: inspecting the chain, resolving
// names to their claims, checking availability, and submitting new claims.
//
// # Connecting
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Resolving a name
//
// Resolve returns the latest claim bound to a name. Unclaimed names yield an
// error wrapping ErrNotFound:
//
//	rec, err := c.Resolve(ctx, "mail.alice")
//	if errors.Is(err, client.ErrNotFound) {
//	    fmt.Println("unclaimed")
//	}
//	fmt.Println(rec.Claim.Data)
//
// Add result caching with WithCacheTTL to avoid repeated node lookups:
//
//	c, _ := client.New(nodeURL, client.WithCacheTTL(30*time.Second))
//
// # Claiming a name
//
// SubmitClaim enqueues the claim and returns immediately; the node mines a
// block for it in the background. WaitForClaim polls until the job settles:
//
//	job, err := c.SubmitClaim(ctx, client.ClaimRequest{
//	    Name: "alice",
//	    Data: "addr=10.0.0.1",
//	})
//	if errors.Is(err, client.ErrNameTaken) {
//	    fmt.Println("someone else owns it")
//	}
//	done, err := c.WaitForClaim(ctx, job.ID, time.Second)
//	if done.Status == client.ClaimDone {
//	    fmt.Println("mined into block", done.BlockIndex)
//	}
//
// # Checking availability first
//
//	a, _ := c.Availability(ctx, "alice", "")
//	fmt.Println(a.Available)
//
// Pass a hex public key as the second argument to evaluate availability for
// a claimant other than the node itself.
//
// # Inspecting the chain
//
//	info, _ := c.ChainInfo(ctx)
//	fmt.Println(info.Height, info.TipHash)
//
//	block, _ := c.BlockByIndex(ctx, 1)
//	fmt.Println(block.Hash)
//
//	if err := c.VerifyChain(ctx); err != nil {
//	    // wraps ErrChainInvalid when a stored block is broken
//	}
package client
