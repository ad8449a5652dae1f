package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexbensimon/pakt/pkg/config"
	"github.com/alexbensimon/pakt/pkg/identity"
)

const seedFile = "signing.seed"

// loadKeySet returns the bearer token key set derived from the persisted
// seed under the data dir, so `pakt token` and the server agree on keys.
func loadKeySet(cfg *config.Config, stdout io.Writer) (*identity.Ed25519KeySet, error) {
	seed, err := loadOrGenerateSeed(cfg, stdout)
	if err != nil {
		return nil, err
	}
	return identity.NewSeededKeySet(seed)
}

func loadOrGenerateSeed(cfg *config.Config, stdout io.Writer) ([]byte, error) {
	path := filepath.Join(cfg.DataDir, seedFile)
	if raw, err := os.ReadFile(path); err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", seedFile, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid %s: want %d bytes, got %d", seedFile, ed25519.SeedSize, len(seed))
		}
		slog.Debug("trust: loaded signing seed", "path", path)
		return seed, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", seedFile, err)
	}

	if cfg.Production {
		return nil, fmt.Errorf("production mode requires %s to exist", path)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", seedFile, err)
	}
	fmt.Fprintf(stdout, "\n%sSECURITY WARNING: Using auto-generated signing seed.%s\n", ColorBold+ColorYellow, ColorReset)
	fmt.Fprintf(stdout, "   Seed saved to: %s\n", path)
	fmt.Fprintf(stdout, "   In production, provision it from a secret manager and set PAKT_PRODUCTION=1.\n\n")
	return seed, nil
}

func announceLiteMode(cfg *config.Config, stdout io.Writer) {
	if !cfg.LiteMode() {
		return
	}
	fmt.Fprintf(stdout, "DATABASE_URL not set. Falling back to %sLite Mode%s (SQLite under %s).\n",
		ColorBold+ColorCyan, ColorReset, cfg.DataDir)
}
