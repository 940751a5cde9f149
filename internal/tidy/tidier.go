package tidy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AisyIE/ai-toolbox/internal/fingerprint"
	"github.com/AisyIE/ai-toolbox/internal/store"
	"github.com/AisyIE/ai-toolbox/internal/tools"
	"github.com/AisyIE/ai-toolbox/internal/types"
)

const (
	// maxWorkers limits the number of concurrent goroutines during cleanup operations.
	maxWorkers = 10
)

// CleanupReport summarizes the results of a tidy operation.
// It provides statistics about the cleanup process including the number of
// stale target records removed and orphaned symlinks deleted.
type CleanupReport struct {
	// StaleTargetRecords is the count of target records whose synced
	// artifact no longer exists on disk.
	StaleTargetRecords int
	// OrphanedSymlinks is the count of symlinks removed from tool skills directories.
	OrphanedSymlinks int
	// SkillsChecked is the total number of skills processed.
	SkillsChecked int
	// ToolsScanned is the number of installed tool directories examined.
	ToolsScanned int
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Logger defines the structured logging interface used by Tidier.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
}

// NoOpLogger is a logger that discards all log messages.
// It is used as the default logger when no custom logger is provided.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, fields ...Field) {}

func (NoOpLogger) Info(msg string, fields ...Field) {}

func (NoOpLogger) Warn(msg string, fields ...Field) {}

func (NoOpLogger) Error(msg string, err error, fields ...Field) {}

// Tidier handles cleanup of stale target records and orphaned symlinks.
// It performs two main operations:
// 1. Removes target records whose synced artifact no longer exists on disk
// 2. Deletes symlinks in tool skills directories that point into the
// central repository without a matching target record
type Tidier struct {
	store    *store.Store
	registry *tools.Registry
	logger   Logger
}

// NewTidier creates a new Tidier instance with a no-op logger.
func NewTidier(st *store.Store, registry *tools.Registry) *Tidier {
	return &Tidier{
		store:    st,
		registry: registry,
		logger:   NoOpLogger{},
	}
}

// NewTidierWithLogger creates a new Tidier with a custom logger for observability.
func NewTidierWithLogger(st *store.Store, registry *tools.Registry, logger Logger) *Tidier {
	return &Tidier{
		store:    st,
		registry: registry,
		logger:   logger,
	}
}

// Tidy performs cleanup of stale target records and orphaned symlinks.
// It uses a worker pool pattern to limit concurrent goroutines to maxWorkers.
// The operation can be cancelled via the provided context.
//
// Returns a CleanupReport with statistics about what was cleaned up.
// If the context is cancelled, a partial report may be returned with an error.
func (t *Tidier) Tidy(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{}
	var wg sync.WaitGroup
	var mu sync.Mutex

	skills, err := t.store.Load()
	if err != nil {
		return nil, &TidyError{
			Type:    ErrorTypeRegistry,
			Message: "failed to load skills registry",
			Err:     err,
		}
	}

	report.SkillsChecked = len(skills)

	type pendingUpdate struct {
		skillID    string
		staleTools []string
	}

	updateChan := make(chan pendingUpdate, len(skills))
	sem := make(chan struct{}, maxWorkers)

	for _, skill := range skills {
		select {
		case <-ctx.Done():
			return report, &TidyError{
				Type:    ErrorTypeRegistry,
				Message: "operation cancelled",
				Err:     ctx.Err(),
			}
		default:
		}

		if len(skill.Targets) == 0 {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(s types.ManagedSkill) {
			defer func() { <-sem; wg.Done() }()

			staleTools := t.findStaleTargets(&s)

			if len(staleTools) > 0 {
				mu.Lock()
				report.StaleTargetRecords += len(staleTools)
				mu.Unlock()

				updateChan <- pendingUpdate{
					skillID:    s.ID,
					staleTools: staleTools,
				}
			}
		}(skill)
	}

	go func() {
		wg.Wait()
		close(updateChan)
	}()

	pendingUpdates := make([]pendingUpdate, 0)
	for update := range updateChan {
		pendingUpdates = append(pendingUpdates, update)
	}

	for _, update := range pendingUpdates {
		if err := t.dropTargets(update.skillID, update.staleTools); err != nil {
			t.logger.Error("Failed to remove stale target records", err,
				Field{Key: "skill", Value: update.skillID})
		} else {
			t.logger.Info("Removed stale target records",
				Field{Key: "skill", Value: update.skillID},
				Field{Key: "count", Value: len(update.staleTools)})
		}
	}

	select {
	case <-ctx.Done():
		return report, &TidyError{
			Type:    ErrorTypeRegistry,
			Message: "operation cancelled",
			Err:     ctx.Err(),
		}
	default:
	}

	orphanedSymlinks, scanned, err := t.findAndRemoveOrphanedSymlinks(ctx)
	if err != nil {
		return report, &TidyError{
			Type:    ErrorTypeFilesystem,
			Message: "failed to remove orphaned symlinks",
			Err:     err,
		}
	}

	report.OrphanedSymlinks = orphanedSymlinks
	report.ToolsScanned = scanned

	return report, nil
}

// findStaleTargets identifies target records whose artifact no longer
// exists on disk.
func (t *Tidier) findStaleTargets(skill *types.ManagedSkill) []string {
	var staleTools []string

	for _, target := range skill.Targets {
		_, err := os.Lstat(target.TargetPath)
		if err == nil {
			continue
		}
		if !os.IsNotExist(err) {
			t.logger.Warn("Failed to check target",
				Field{Key: "path", Value: target.TargetPath},
				Field{Key: "error", Value: err})
			continue
		}

		staleTools = append(staleTools, target.Tool)
		t.logger.Debug("Found stale target record",
			Field{Key: "skill", Value: skill.Name},
			Field{Key: "tool", Value: target.Tool})
	}

	return staleTools
}

// dropTargets removes the given tools from a skill's target list and
// saves the record.
func (t *Tidier) dropTargets(skillID string, staleTools []string) error {
	skill, err := t.store.Get(skillID)
	if err != nil {
		return err
	}

	stale := make(map[string]struct{}, len(staleTools))
	for _, tool := range staleTools {
		stale[tool] = struct{}{}
	}

	kept := skill.Targets[:0]
	for _, target := range skill.Targets {
		if _, ok := stale[target.Tool]; !ok {
			kept = append(kept, target)
		}
	}
	skill.Targets = kept

	return t.store.Upsert(skill)
}

// findAndRemoveOrphanedSymlinks scans installed tool skills directories
// for symlinks pointing into the central repository that have no matching
// target record and removes them.
func (t *Tidier) findAndRemoveOrphanedSymlinks(ctx context.Context) (int, int, error) {
	managedKeys, err := t.store.ManagedTargetKeys()
	if err != nil {
		return 0, 0, err
	}
	centralBase := filepath.Clean(t.store.BasePath())

	var orphanedCount int
	var scanned int
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, maxWorkers)

	for _, tool := range t.registry.Tools() {
		select {
		case <-ctx.Done():
			return orphanedCount, scanned, ctx.Err()
		default:
		}

		if !t.registry.IsInstalled(&tool) {
			continue
		}
		scanned++

		wg.Add(1)
		sem <- struct{}{}
		go func(toolKey, skillsDir string) {
			defer func() { <-sem; wg.Done() }()

			entries, err := os.ReadDir(skillsDir)
			if err != nil {
				if os.IsNotExist(err) {
					return
				}
				t.logger.Warn("Failed to read tool skills directory",
					Field{Key: "path", Value: skillsDir},
					Field{Key: "error", Value: err})
				return
			}

			localOrphaned := 0

			for _, entry := range entries {
				symlinkPath := filepath.Join(skillsDir, entry.Name())

				info, err := os.Lstat(symlinkPath)
				if err != nil {
					continue
				}
				if info.Mode()&os.ModeSymlink == 0 {
					continue
				}

				target, err := os.Readlink(symlinkPath)
				if err != nil {
					t.logger.Warn("Failed to read symlink",
						Field{Key: "path", Value: symlinkPath},
						Field{Key: "error", Value: err})
					continue
				}

				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(symlinkPath), target)
				}
				target = filepath.Clean(target)

				if !isUnder(target, centralBase) {
					// Not ours. Leave foreign links alone.
					continue
				}

				if _, ok := managedKeys[fingerprint.TargetKey(toolKey, symlinkPath)]; ok {
					continue
				}

				if err := os.Remove(symlinkPath); err != nil {
					t.logger.Error("Failed to remove orphaned symlink", err,
						Field{Key: "path", Value: symlinkPath})
				} else {
					t.logger.Info("Removed orphaned symlink",
						Field{Key: "path", Value: symlinkPath})
					localOrphaned++
				}
			}

			mu.Lock()
			orphanedCount += localOrphaned
			mu.Unlock()
		}(tool.Key, t.registry.SkillsDir(&tool))
	}

	wg.Wait()

	return orphanedCount, scanned, nil
}

func isUnder(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
