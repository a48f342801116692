package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/azalea-rs/azalea-viaversion/internal/storage"
	"github.com/azalea-rs/azalea-viaversion/internal/storage/models"
	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

// Cache resolves a local path to a runnable copy of the proxy artifact,
// fetching and verifying it when absent or corrupted.
type Cache struct {
	dir     string
	fetcher *Fetcher
	store   storage.Storage // optional run/artifact metadata, may be nil
}

// NewCache creates an artifact cache rooted at dir.
func NewCache(dir string, fetcher *Fetcher, store storage.Storage) *Cache {
	if fetcher == nil {
		fetcher = NewFetcher(DefaultFetcherConfig())
	}
	return &Cache{
		dir:     dir,
		fetcher: fetcher,
		store:   store,
	}
}

// Ensure returns the local path of a verified copy of the artifact,
// downloading it when missing. A cached file whose hash does not match the
// descriptor is treated as absent and discarded. A downloaded file that
// fails verification is discarded and fetched once more before giving up.
func (c *Cache) Ensure(ctx context.Context, desc Descriptor) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := filepath.Join(c.dir, desc.Filename())

	ok, err := verifyFile(path, desc.SHA256)
	if err == nil && ok {
		c.recordVerified(ctx, desc, path)
		return path, nil
	}
	if err == nil && !ok {
		// Corrupted or truncated leftover. Never leave it looking usable.
		log.Printf("[Artifact] cached %s failed verification, discarding", desc.Filename())
		os.Remove(path)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = c.download(ctx, desc, path)
		if lastErr == nil {
			c.recordFetched(ctx, desc, path)
			return path, nil
		}
		if !errors.Is(lastErr, pkgerrors.ErrIntegrityMismatch) {
			break
		}
		log.Printf("[Artifact] download of %s failed verification, retrying once", desc.Filename())
	}

	return "", lastErr
}

// download fetches the artifact into a temporary file, hashing as it
// streams, and atomically renames it into place only after the hash
// matches. A concurrent or interrupted run never observes a partial file
// at the final path.
func (c *Cache) download(ctx context.Context, desc Descriptor, dest string) error {
	tmp, err := os.CreateTemp(c.dir, desc.Filename()+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	log.Printf("[Artifact] downloading %s", desc.URL)

	n, err := c.fetcher.Fetch(ctx, desc.URL, io.MultiWriter(tmp, hasher))
	if err != nil {
		tmp.Close()
		return &pkgerrors.ArtifactError{
			Version: desc.Version,
			URL:     desc.URL,
			Err:     fmt.Errorf("%w: %v", pkgerrors.ErrFetchFailed, err),
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if sum != desc.SHA256 {
		return &pkgerrors.ArtifactError{
			Version: desc.Version,
			URL:     desc.URL,
			Err:     fmt.Errorf("%w: got %s, want %s", pkgerrors.ErrIntegrityMismatch, sum, desc.SHA256),
		}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to install artifact: %w", err)
	}

	log.Printf("[Artifact] downloaded %s (%d bytes) to %s", desc.Filename(), n, dest)
	return nil
}

func (c *Cache) recordFetched(ctx context.Context, desc Descriptor, path string) {
	if c.store == nil {
		return
	}
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	now := time.Now()
	err := c.store.UpsertArtifact(ctx, &models.Artifact{
		Version:        desc.Version,
		SHA256:         desc.SHA256,
		Path:           path,
		Size:           size,
		FetchedAt:      now,
		LastVerifiedAt: now,
	})
	if err != nil {
		log.Printf("[Artifact] failed to record download: %v", err)
	}
}

func (c *Cache) recordVerified(ctx context.Context, desc Descriptor, path string) {
	if c.store == nil {
		return
	}
	existing, err := c.store.GetArtifact(ctx, desc.Version)
	if err == nil && existing == nil {
		// File predates the metadata store (or the db was wiped).
		c.recordFetched(ctx, desc, path)
		return
	}
	if err := c.store.TouchArtifactVerified(ctx, desc.Version, time.Now()); err != nil {
		log.Printf("[Artifact] failed to record verification: %v", err)
	}
}

// verifyFile hashes path and compares it against wantHex. Returns an error
// only when the file does not exist or cannot be read.
func verifyFile(path, wantHex string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return false, err
	}

	return hex.EncodeToString(hasher.Sum(nil)) == wantHex, nil
}
