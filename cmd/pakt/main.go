package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alexbensimon/pakt/pkg/archive"
	"github.com/alexbensimon/pakt/pkg/config"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/store"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// loadConfig is a variable to allow overriding the environment in tests
var loadConfig = config.Load

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return serve(stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return serve(stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "snapshot":
		return runSnapshotCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return serve(stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func serve(stdout, stderr io.Writer) int {
	if err := startServer(context.Background(), loadConfig(), stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "server failed: %v\n", err)
		return 1
	}
	return 0
}

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sPakt Ledger %s%s\n", ColorBold+ColorBlue, "v1.0.0", ColorReset)
	fmt.Fprintf(w, "%sStake on your habits.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  pakt <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "LEDGER")
	printCommand(w, "serve", "Run the ledger API server (default)")
	printCommand(w, "health", "Check server health (HTTP) (--url)")

	printSection(w, "OPERATIONS")
	printCommand(w, "token", "Issue an API bearer token (--wallet, --ttl)")
	printCommand(w, "snapshot", "Export the newest snapshot to ARCHIVE_URL (--out)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}

func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cfg := loadConfig()
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	url := cmd.String("url", "http://localhost:"+cfg.Port+"/health", "Health endpoint")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*url)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}

func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cfg := loadConfig()
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		wallet string
		ttl    time.Duration
	)
	cmd.StringVar(&wallet, "wallet", "", "Wallet address the token acts as (REQUIRED)")
	cmd.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if wallet == "" {
		fmt.Fprintln(stderr, "Error: --wallet is required")
		cmd.Usage()
		return 2
	}
	addr, err := identity.ParseAddress(wallet)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	keys, err := loadKeySet(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	tok, err := identity.NewTokenManager(keys).Issue(context.Background(), addr, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, tok)
	return 0
}

// runSnapshotCmd exports the newest persisted snapshot to the configured
// archive, or to a file or stdout when no archive is set or -out is given.
func runSnapshotCmd(args []string, stdout, stderr io.Writer) int {
	cfg := loadConfig()
	cmd := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	outPath := cmd.String("out", "", "Write the snapshot JSON to this file instead of ARCHIVE_URL")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.Close()

	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *outPath == "" && cfg.ArchiveURL != "" {
		key, err := archiveSnapshot(ctx, cfg.ArchiveURL, *snap)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%sArchived%s snapshot %d as %s\n", ColorGreen, ColorReset, snap.Sequence, key)
		return 0
	}

	data, err := store.Encode(*snap)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *outPath == "" {
		_, _ = stdout.Write(append(data, '\n'))
		return 0
	}
	if err := os.WriteFile(*outPath, data, 0o600); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote snapshot %d (%s) to %s\n", snap.Sequence, archive.SnapshotKey(snap.Sequence, data), *outPath)
	return 0
}
