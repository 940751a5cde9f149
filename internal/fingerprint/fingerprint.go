// Package fingerprint provides the content-addressing primitives used
// across the engine: deterministic hashes of skill bundles for change
// and conflict detection, and path normalization for registry keys.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Bytes returns the hex sha256 of content with line endings normalized
// to LF, so the same skill text fingerprints equal across platforms.
func Bytes(content []byte) string {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}

// File returns the fingerprint of a single file's content.
func File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Bytes(data), nil
}

// Dir returns a deterministic fingerprint of a skill bundle directory:
// the hash of every regular file's (relative path, content hash) pair in
// sorted path order. Symlinked bundles hash their resolved content, so a
// link and a copy of the same skill fingerprint equal. The .git
// directory is ignored.
func Dir(root string) (string, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	type fileEntry struct {
		rel  string
		hash string
	}
	var entries []fileEntry

	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		h, err := File(path)
		if err != nil {
			return err
		}
		entries = append(entries, fileEntry{rel: filepath.ToSlash(rel), hash: h})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	hasher := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(hasher, "%s\x00%s\x00", e.rel, e.hash)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// NormalizePath returns the absolute, symlink-resolved, cleaned form of
// a path for use in comparisons and registry keys. The observed link
// flag of an artifact is tracked separately by callers; normalization
// never substitutes for it.
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return filepath.Clean(resolved), nil
	}
	// Path may not exist yet; fall back to the lexical form.
	return filepath.Clean(abs), nil
}

// TargetKey builds the registry key identifying one (tool, target path)
// pairing. Tool keys are case-insensitive.
func TargetKey(tool, path string) string {
	normalized, err := NormalizePath(path)
	if err != nil {
		normalized = filepath.Clean(path)
	}
	return strings.ToLower(tool) + "\n" + normalized
}
