package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/namechain-protocol/namechain/internal/keystore"
	"github.com/namechain-protocol/namechain/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL string
	cfgFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ncp",
	Short: "Namechain CLI",
	Long: `ncp is the command-line interface for a Namechain node.

It lets you claim names, check availability, resolve names to their
registered data, and inspect the node's chain.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ncp")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ncp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "Namechain node URL (default http://localhost:8080)")

	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(claimsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(versionCmd)
}

// ── key ──────────────────────────────────────────────────────────────────────

var (
	keyFile       string
	keyPassphrase string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage a node signing key file",
	Long: `key creates and inspects the Ed25519 key file a namechaind node signs
claims with. Point --file at the node's configured key location; the daemon
default is data/node.key.`,
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a new node key file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(keyFile); err == nil {
			return fmt.Errorf("key file %s already exists; remove it first to generate a new identity", keyFile)
		}

		keys, err := keystore.Generate()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if err := keys.Save(keyFile, passphrase()); err != nil {
			return fmt.Errorf("save key: %w", err)
		}

		fmt.Printf("✓ Node key created\n\n")
		fmt.Printf("  File:    %s\n", keyFile)
		fmt.Printf("  Pub key: %s\n\n", keys.Public())
		if passphrase() == "" {
			fmt.Println("The key file is unencrypted. Set KEY_PASSPHRASE (or --passphrase) to seal it.")
		}
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the public key of a node key file",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := keystore.Load(keyFile, passphrase())
		if err != nil {
			return fmt.Errorf("load key %s: %w", keyFile, err)
		}
		fmt.Printf("File:    %s\n", keyFile)
		fmt.Printf("Pub key: %s\n", keys.Public())
		return nil
	},
}

func init() {
	keyCmd.PersistentFlags().StringVar(&keyFile, "file", filepath.Join("data", "node.key"), "Key file path")
	keyCmd.PersistentFlags().StringVar(&keyPassphrase, "passphrase", "", "Key file passphrase (default $KEY_PASSPHRASE)")

	keyCmd.AddCommand(keyInitCmd)
	keyCmd.AddCommand(keyShowCmd)
}

// passphrase returns the key passphrase from the flag or the environment.
func passphrase() string {
	if keyPassphrase != "" {
		return keyPassphrase
	}
	return viper.GetString("key_passphrase")
}

// ── claim ────────────────────────────────────────────────────────────────────

var (
	claimData    string
	claimMethod  string
	claimWait    bool
	claimTimeout time.Duration
)

var claimCmd = &cobra.Command{
	Use:   "claim <name>",
	Short: "Claim a name on the chain",
	Long: `claim submits a name registration to the node, which mines it into a
block signed with the node's key.

Names are one or two labels: "alice" claims a zone, "mail.alice" claims a
name under an existing zone. Claims are first-write-wins.

  ncp claim alice --data "addr=10.0.0.1" --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runClaim,
}

func init() {
	claimCmd.Flags().StringVar(&claimData, "data", "", "Payload to register under the name")
	claimCmd.Flags().StringVar(&claimMethod, "method", "", `Claim method (default "register")`)
	claimCmd.Flags().BoolVar(&claimWait, "wait", false, "Block until the claim is mined")
	claimCmd.Flags().DurationVar(&claimTimeout, "timeout", 2*time.Minute, "How long --wait polls before giving up")
}

func runClaim(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := context.Background()

	c, err := client.New(nodeURL)
	if err != nil {
		return err
	}

	job, err := c.SubmitClaim(ctx, client.ClaimRequest{
		Name:   name,
		Method: claimMethod,
		Data:   claimData,
	})
	if err != nil {
		if errors.Is(err, client.ErrNameTaken) {
			return fmt.Errorf("%q is already claimed under another key", name)
		}
		return fmt.Errorf("submit claim: %w", err)
	}

	fmt.Printf("✓ Claim submitted\n\n")
	fmt.Printf("  Name: %s\n", job.Name)
	fmt.Printf("  Job:  %s\n\n", job.ID)

	if !claimWait {
		fmt.Printf("Track it with:\n  ncp claims %s\n", job.ID)
		return nil
	}

	// Poll until the node mines the block or the timeout passes.
	spinner := []string{"|", "/", "-", "\\"}
	deadline := time.Now().Add(claimTimeout)
	for i := 0; time.Now().Before(deadline); i++ {
		job, err = c.ClaimStatus(ctx, job.ID)
		if err != nil {
			fmt.Println()
			return fmt.Errorf("claim status: %w", err)
		}
		if job.Finished() {
			break
		}
		fmt.Printf("\rMining block... %s ", spinner[i%len(spinner)])
		time.Sleep(500 * time.Millisecond)
	}
	fmt.Println()

	switch job.Status {
	case client.ClaimDone:
		fmt.Printf("✓ Name claimed: %s\n\n", name)
		fmt.Printf("  Block: %d\n\n", job.BlockIndex)
		fmt.Printf("Verify with:\n  ncp resolve %s\n", name)
		return nil
	case client.ClaimFailed:
		return fmt.Errorf("claim failed: %s", job.Error)
	default:
		return fmt.Errorf("still %s after %s; check later with 'ncp claims %s'", job.Status, claimTimeout, job.ID)
	}
}

// ── claims ───────────────────────────────────────────────────────────────────

var claimsCmd = &cobra.Command{
	Use:   "claims [job-id]",
	Short: "List claim jobs on the node, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			job, err := c.ClaimStatus(ctx, args[0])
			if err != nil {
				return fmt.Errorf("claim status: %w", err)
			}
			fmt.Printf("Job:    %s\n", job.ID)
			fmt.Printf("Name:   %s\n", job.Name)
			fmt.Printf("Status: %s\n", job.Status)
			if job.BlockIndex > 0 {
				fmt.Printf("Block:  %d\n", job.BlockIndex)
			}
			if job.Error != "" {
				fmt.Printf("Error:  %s\n", job.Error)
			}
			return nil
		}

		jobs, err := c.ListClaims(ctx)
		if err != nil {
			return fmt.Errorf("list claims: %w", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No claims submitted to this node yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tBLOCK\tERROR")
		for _, j := range jobs {
			block := ""
			if j.BlockIndex > 0 {
				block = strconv.FormatUint(j.BlockIndex, 10)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, j.Status, block, j.Error)
		}
		return w.Flush()
	},
}

// ── check ────────────────────────────────────────────────────────────────────

var checkPubKey string

var checkCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Check whether a name is available",
	Long: `check asks the node whether a name could be claimed.

By default availability is evaluated against the node's own key (a name the
node already owns stays available to it). Pass --pub-key to evaluate for a
different claimant.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}

		result, err := c.Availability(context.Background(), name, checkPubKey)
		if err != nil {
			return fmt.Errorf("check availability: %w", err)
		}

		if result.Available {
			fmt.Printf("✓ %s is available\n", name)
		} else {
			fmt.Printf("✗ %s is not available\n", name)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkPubKey, "pub-key", "", "Claimant public key (hex); default: the node's key")
}

// ── resolve ──────────────────────────────────────────────────────────────────

// resolveRow holds the outcome of a single name resolution attempt.
type resolveRow struct {
	name string
	rec  *client.NameRecord
	err  error
}

var resolveFormat string

var resolveCmd = &cobra.Command{
	Use:   "resolve <name> [name] ...",
	Short: "Resolve one or more names to their registered data",
	Long: `Resolve looks up the latest claim bound to each name.

Multiple names are resolved concurrently and displayed as a table:

  ncp resolve alice mail.alice bob`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "text", "Output format: text or json")
}

func runResolve(cmd *cobra.Command, args []string) error {
	c, err := client.New(nodeURL)
	if err != nil {
		return err
	}

	ctx := context.Background()

	// Resolve all names concurrently.
	resultsCh := make(chan resolveRow, len(args))
	for _, name := range args {
		name := name
		go func() {
			rec, err := c.Resolve(ctx, name)
			resultsCh <- resolveRow{name: name, rec: rec, err: err}
		}()
	}

	// Collect in input order.
	byName := make(map[string]resolveRow, len(args))
	for range args {
		r := <-resultsCh
		byName[r.name] = r
	}
	ordered := make([]resolveRow, len(args))
	for i, name := range args {
		ordered[i] = byName[name]
	}

	switch resolveFormat {
	case "json":
		return printResolveJSON(ordered)
	default:
		return printResolveText(ordered)
	}
}

func printResolveJSON(results []resolveRow) error {
	type jsonRow struct {
		Name     string `json:"name"`
		Identity string `json:"identity,omitempty"`
		Method   string `json:"method,omitempty"`
		Data     string `json:"data,omitempty"`
		PubKey   string `json:"pub_key,omitempty"`
		Error    string `json:"error,omitempty"`
	}
	rows := make([]jsonRow, len(results))
	for i, r := range results {
		if r.err != nil {
			rows[i] = jsonRow{Name: r.name, Error: r.err.Error()}
		} else {
			rows[i] = jsonRow{
				Name:     r.rec.Name,
				Identity: r.rec.Claim.Identity,
				Method:   r.rec.Claim.Method,
				Data:     r.rec.Claim.Data,
				PubKey:   r.rec.Claim.PubKey,
			}
		}
	}
	// Single result: unwrap from array for convenience.
	var v any = rows
	if len(rows) == 1 {
		v = rows[0]
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResolveText(results []resolveRow) error {
	if len(results) == 1 {
		r := results[0]
		if r.err != nil {
			if errors.Is(r.err, client.ErrNotFound) {
				return fmt.Errorf("%q is not claimed", r.name)
			}
			return fmt.Errorf("resolve %q: %w", r.name, r.err)
		}
		fmt.Printf("Name:     %s\n", r.rec.Name)
		fmt.Printf("Identity: %s\n", r.rec.Claim.Identity)
		fmt.Printf("Method:   %s\n", r.rec.Claim.Method)
		if r.rec.Claim.Data != "" {
			fmt.Printf("Data:     %s\n", r.rec.Claim.Data)
		}
		fmt.Printf("Owner:    %s\n", r.rec.Claim.PubKey)
		return nil
	}

	// Multiple results: tabulated.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMETHOD\tDATA\tOWNER\tERROR")
	for _, r := range results {
		if r.err != nil {
			msg := r.err.Error()
			if errors.Is(r.err, client.ErrNotFound) {
				msg = "not claimed"
			}
			fmt.Fprintf(w, "%s\t\t\t\t%s\n", r.name, msg)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
				r.rec.Name, r.rec.Claim.Method, r.rec.Claim.Data, shortHex(r.rec.Claim.PubKey))
		}
	}
	return w.Flush()
}

// shortHex abbreviates a long hex string for table output.
func shortHex(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}

// ── chain ────────────────────────────────────────────────────────────────────

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Inspect the node's chain",
}

var chainInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show chain metadata and the current tip",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}

		info, err := c.ChainInfo(context.Background())
		if err != nil {
			return fmt.Errorf("chain info: %w", err)
		}

		fmt.Printf("Chain:   %s\n", info.ChainName)
		fmt.Printf("Flags:   %d\n", info.VersionFlags)
		fmt.Printf("Height:  %d\n", info.Height)
		if info.TipHash != "" {
			fmt.Printf("Tip:     %s\n", info.TipHash)
		} else {
			fmt.Println("Tip:     (empty chain)")
		}
		return nil
	},
}

var chainVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-verify every stored block's hash and linkage",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}

		if err := c.VerifyChain(context.Background()); err != nil {
			return err
		}

		info, err := c.ChainInfo(context.Background())
		if err != nil {
			return fmt.Errorf("chain info: %w", err)
		}
		fmt.Printf("✓ Chain intact (%d blocks)\n", info.Height)
		return nil
	},
}

var chainBlockCmd = &cobra.Command{
	Use:   "block <index>",
	Short: "Show one block as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || index == 0 {
			return fmt.Errorf("index must be a positive integer, got %q", args[0])
		}

		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}

		block, err := c.BlockByIndex(context.Background(), index)
		if err != nil {
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("no block at index %d", index)
			}
			return fmt.Errorf("get block: %w", err)
		}

		out, _ := json.MarshalIndent(block, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	chainCmd.AddCommand(chainInfoCmd)
	chainCmd.AddCommand(chainVerifyCmd)
	chainCmd.AddCommand(chainBlockCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ncp CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ncp %s (Namechain)\n", version)
	},
}
