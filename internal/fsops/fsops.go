// Package fsops holds the filesystem primitives shared by the store and
// the sync engine: recursive bundle copies, tolerant removal of files,
// directories and symlinks, and atomic directory replacement.
package fsops

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyDir recursively copies the contents of source into target,
// creating target if needed. Symlinks inside the bundle are not
// followed; .git directories are skipped.
func CopyDir(source, target string) error {
	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(target, rel)

		if d.IsDir() {
			return os.MkdirAll(dest, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		return copyFile(path, dest)
	})
}

func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", source, err)
	}
	return out.Close()
}

// RemovePath removes a file, directory or symlink. A symlink is removed
// as a file even when it points at a directory. A missing path is not an
// error.
func RemovePath(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove directory %s: %w", path, err)
	}
	return nil
}

// ReplaceDir atomically installs the fully staged directory at target.
// The staging directory must live on the same filesystem as target. Any
// previous artifact at target is removed first; the final rename is the
// commit point, so a reader never observes a half-written bundle.
func ReplaceDir(staged, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", target, err)
	}
	if err := RemovePath(target); err != nil {
		return err
	}
	if err := os.Rename(staged, target); err != nil {
		os.RemoveAll(staged)
		return fmt.Errorf("failed to install %s: %w", target, err)
	}
	return nil
}

// StagingDir returns a sibling staging path for target, guaranteed to be
// on the same filesystem so the final rename stays atomic.
func StagingDir(target string) string {
	return fmt.Sprintf("%s.staging-%d", target, os.Getpid())
}

// Exists reports whether a path exists, without following a trailing
// symlink.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsSymlink reports whether path exists and is a symlink.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// IsSameLink reports whether path is a symlink pointing at target.
func IsSameLink(path, target string) bool {
	existing, err := os.Readlink(path)
	if err != nil {
		return false
	}
	return existing == target
}
