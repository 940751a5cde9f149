// Package gitcache keeps a TTL-bounded cache of fetched git skill
// sources. Each normalized ref owns one working copy on disk; fetches
// for the same ref collapse into a single in-flight operation, stale
// entries are re-fetched and replaced atomically, and an age-based
// sweep keeps the cache from growing without bound.
package gitcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AisyIE/ai-toolbox/internal/fsops"
)

const (
	entryMetaFile  = "entry.json"
	entryWorkDir   = "checkout"
	entryKeyLength = 16
)

// Fetcher is the remote-fetch primitive: it materializes the content of
// a git ref into dest. The production implementation talks to the
// GitHub contents API; tests inject fakes.
type Fetcher interface {
	Fetch(ctx context.Context, ref, dest string) error
}

// entryMeta is the persisted state of one cache entry.
type entryMeta struct {
	Ref          string    `json:"ref"`
	FetchedAt    time.Time `json:"fetched_at"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// Cache is the on-disk git source cache.
type Cache struct {
	dir     string
	ttl     time.Duration
	fetcher Fetcher

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a cache rooted at dir. Entries older than ttl are
// re-fetched on access.
func New(dir string, ttl time.Duration, fetcher Fetcher) *Cache {
	return &Cache{
		dir:      dir,
		ttl:      ttl,
		fetcher:  fetcher,
		inflight: make(map[string]struct{}),
	}
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// SetTTL changes the freshness window for subsequent fetches.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

func (c *Cache) currentTTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl
}

// NormalizeRef canonicalizes a git source ref for use as a cache key.
func NormalizeRef(ref string) string {
	norm := strings.TrimSpace(ref)
	norm = strings.TrimSuffix(norm, "/")
	norm = strings.TrimSuffix(norm, ".git")
	return strings.ToLower(norm)
}

// entryKey is the directory name of a ref's cache entry. It exists
// before any disk state does, so in-flight tracking is keyed on it
// rather than on persisted metadata.
func entryKey(normRef string) string {
	sum := sha256.Sum256([]byte(normRef))
	return hex.EncodeToString(sum[:])[:entryKeyLength]
}

func (c *Cache) entryDir(normRef string) string {
	return filepath.Join(c.dir, entryKey(normRef))
}

// Fetch returns a working copy for ref. A fresh cache entry is returned
// without touching the remote; a stale or missing entry triggers exactly
// one fetch even under concurrent callers, and the previous working copy
// stays usable until the replacement is fully in place.
func (c *Cache) Fetch(ctx context.Context, ref string) (string, error) {
	normRef := NormalizeRef(ref)
	if normRef == "" {
		return "", &CacheError{
			Type:    ErrTypeInvalidRef,
			Message: "git ref cannot be empty",
		}
	}

	path, err, _ := c.group.Do(normRef, func() (interface{}, error) {
		return c.fetchEntry(ctx, normRef, strings.TrimSpace(ref))
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

// fetchEntry runs under the single-flight group for normRef. The
// original ref spelling is handed to the fetcher since remote paths can
// be case sensitive.
func (c *Cache) fetchEntry(ctx context.Context, normRef, ref string) (string, error) {
	entryDir := c.entryDir(normRef)
	workDir := filepath.Join(entryDir, entryWorkDir)
	metaPath := filepath.Join(entryDir, entryMetaFile)

	if meta, err := readMeta(metaPath); err == nil {
		if time.Since(meta.FetchedAt) < c.currentTTL() {
			meta.LastAccessAt = time.Now()
			if err := writeMeta(metaPath, meta); err != nil {
				return "", err
			}
			return workDir, nil
		}
	}

	c.markInflight(entryKey(normRef))
	defer c.unmarkInflight(entryKey(normRef))

	if err := ctx.Err(); err != nil {
		return "", &CacheError{
			Type:    ErrTypeFetch,
			Message: "fetch cancelled",
			Ref:     normRef,
			Err:     err,
		}
	}

	staged := fsops.StagingDir(workDir)
	defer os.RemoveAll(staged)
	if err := os.MkdirAll(staged, 0755); err != nil {
		return "", &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to create staging directory",
			Ref:     normRef,
			Err:     err,
		}
	}

	if err := c.fetcher.Fetch(ctx, ref, staged); err != nil {
		return "", &CacheError{
			Type:    ErrTypeFetch,
			Message: fmt.Sprintf("failed to fetch '%s'", normRef),
			Ref:     normRef,
			Err:     err,
		}
	}

	if err := fsops.ReplaceDir(staged, workDir); err != nil {
		return "", &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to install working copy",
			Ref:     normRef,
			Err:     err,
		}
	}

	now := time.Now()
	if err := writeMeta(metaPath, &entryMeta{Ref: normRef, FetchedAt: now, LastAccessAt: now}); err != nil {
		return "", err
	}
	return workDir, nil
}

func (c *Cache) markInflight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[key] = struct{}{}
}

func (c *Cache) unmarkInflight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

func (c *Cache) isInflight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[key]
	return ok
}

// Cleanup removes every entry strictly older than cleanupDays; an entry
// aged exactly cleanupDays is kept. Entries with a fetch in flight are
// never removed. Returns the number of entries removed.
func (c *Cache) Cleanup(cleanupDays int) (int, error) {
	cutoff := time.Duration(cleanupDays) * 24 * time.Hour
	return c.sweep(func(meta *entryMeta) bool {
		return time.Since(meta.FetchedAt) > cutoff
	})
}

// Clear removes every entry unconditionally, except those with a fetch
// in flight. Returns the number of entries removed.
func (c *Cache) Clear() (int, error) {
	return c.sweep(func(*entryMeta) bool { return true })
}

func (c *Cache) sweep(shouldRemove func(*entryMeta) bool) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to read cache directory",
			Err:     err,
		}
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		entryDir := filepath.Join(c.dir, entry.Name())
		// The directory name is the in-flight key, so a first fetch
		// that has not written its metadata yet is still protected.
		if c.isInflight(entry.Name()) {
			continue
		}
		meta, err := readMeta(filepath.Join(entryDir, entryMetaFile))
		if err != nil {
			// Unreadable metadata means a broken entry; drop it.
			meta = &entryMeta{}
		}
		if !shouldRemove(meta) {
			continue
		}
		if err := os.RemoveAll(entryDir); err != nil {
			return removed, &CacheError{
				Type:    ErrTypeFilesystem,
				Message: fmt.Sprintf("failed to remove cache entry '%s'", entry.Name()),
				Err:     err,
			}
		}
		removed++
	}
	return removed, nil
}

func readMeta(path string) (*entryMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta entryMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func writeMeta(path string, meta *entryMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to marshal entry metadata",
			Err:     err,
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to write entry metadata",
			Err:     err,
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to replace entry metadata",
			Err:     err,
		}
	}
	return nil
}
