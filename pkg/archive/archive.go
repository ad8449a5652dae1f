// Package archive copies ledger snapshots to durable object storage.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("archive: object not found")

// Archiver stores opaque blobs under slash-separated keys.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// SnapshotKey names a snapshot by journal position and content digest, so
// archiving the same snapshot twice writes the same object.
func SnapshotKey(sequence uint64, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("snapshots/%020d-%s.json", sequence, hex.EncodeToString(sum[:6]))
}

// Open selects a backend from rawURL:
//
//	s3://bucket/prefix?region=eu-west-1&endpoint=http://minio:9000
//	gs://bucket/prefix
//	file:///var/lib/pakt/archive (or a bare path)
func Open(ctx context.Context, rawURL string) (Archiver, error) {
	if rawURL == "" {
		return nil, errors.New("archive: empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("archive: parse %q: %w", rawURL, err)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	switch u.Scheme {
	case "s3":
		return NewS3Archiver(ctx, S3Config{
			Bucket:   u.Host,
			Region:   u.Query().Get("region"),
			Endpoint: u.Query().Get("endpoint"),
			Prefix:   prefix,
		})
	case "gs":
		return NewGCSArchiver(ctx, GCSConfig{Bucket: u.Host, Prefix: prefix})
	case "file", "":
		dir := u.Path
		if u.Scheme == "" {
			dir = rawURL
		}
		return NewDirArchiver(dir)
	default:
		return nil, fmt.Errorf("archive: unsupported scheme %q", u.Scheme)
	}
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("archive: invalid key %q", key)
	}
	return key, nil
}

// DirArchiver writes objects below a local directory.
type DirArchiver struct {
	baseDir string
}

func NewDirArchiver(baseDir string) (*DirArchiver, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to ensure archive dir: %w", err)
	}
	return &DirArchiver{baseDir: baseDir}, nil
}

// Put writes data through a temp file and rename, so readers never see a
// partial object.
func (d *DirArchiver) Put(_ context.Context, key string, data []byte) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	path := filepath.Join(d.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("archive: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (d *DirArchiver) Get(_ context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.baseDir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (d *DirArchiver) Close() error { return nil }
