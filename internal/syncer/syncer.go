// Package syncer projects skills from the central repository into tool
// directories and keeps the per-(skill, tool) link records current.
// Writes to a given target path are serialized and each replacement is
// staged fully before an atomic swap, so a crash or concurrent reader
// never observes a half-written target.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AisyIE/ai-toolbox/internal/fingerprint"
	"github.com/AisyIE/ai-toolbox/internal/fsops"
	"github.com/AisyIE/ai-toolbox/internal/store"
	"github.com/AisyIE/ai-toolbox/internal/tools"
	"github.com/AisyIE/ai-toolbox/internal/types"
)

// Syncer is the sync engine over one store and tool registry.
type Syncer struct {
	store    *store.Store
	registry *tools.Registry
	logger   Logger

	targetMutexes sync.Map // target key -> *sync.Mutex
	recordMutexes sync.Map // skill id -> *sync.Mutex
}

// New creates a sync engine.
func New(st *store.Store, registry *tools.Registry) *Syncer {
	return &Syncer{
		store:    st,
		registry: registry,
		logger:   NoOpLogger{},
	}
}

// SetLogger replaces the default no-op logger.
func (s *Syncer) SetLogger(logger Logger) {
	s.logger = logger
}

func (s *Syncer) targetMutex(key string) *sync.Mutex {
	muIface, _ := s.targetMutexes.LoadOrStore(key, &sync.Mutex{})
	return muIface.(*sync.Mutex)
}

func (s *Syncer) recordMutex(skillID string) *sync.Mutex {
	muIface, _ := s.recordMutexes.LoadOrStore(skillID, &sync.Mutex{})
	return muIface.(*sync.Mutex)
}

// Sync projects one skill into one tool directory. An empty mode picks
// the tool's preferred mode. Sync never mutates the passed skill; the
// registry record is updated through the store.
func (s *Syncer) Sync(ctx context.Context, skill *types.ManagedSkill, toolKey string, mode types.SyncMode) (*types.SyncResult, error) {
	if skill == nil || skill.ID == "" {
		return nil, &SyncError{
			Type:    ErrTypeNotFound,
			Message: "skill cannot be nil",
		}
	}

	tool, err := s.registry.ByKey(toolKey)
	if err != nil {
		return nil, &SyncError{
			Type:    ErrTypeNotFound,
			Message: err.Error(),
			Skill:   skill.Name,
			Tool:    toolKey,
		}
	}

	if mode == "" {
		mode, _ = s.registry.PreferredMode(toolKey)
	}
	if tool.ForceCopy {
		mode = types.ModeCopy
	}

	targetPath, err := s.registry.TargetPathFor(toolKey, skill.Name)
	if err != nil {
		return nil, &SyncError{
			Type:    ErrTypeNotFound,
			Message: err.Error(),
			Skill:   skill.Name,
			Tool:    toolKey,
		}
	}

	mu := s.targetMutex(fingerprint.TargetKey(toolKey, targetPath))
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &SyncError{
			Type:    ErrTypeCancelled,
			Message: "sync cancelled",
			Skill:   skill.Name,
			Tool:    toolKey,
			Err:     err,
		}
	}

	// Never overwrite a path that belongs to a different skill.
	if owner, ok := s.store.OwnerOf(toolKey, targetPath); ok && owner != skill.ID {
		return nil, &SyncError{
			Type:    ErrTypeTargetConflict,
			Message: fmt.Sprintf("target path '%s' belongs to skill '%s'", targetPath, owner),
			Skill:   skill.Name,
			Tool:    toolKey,
		}
	}

	result, err := s.writeTarget(skill, mode, targetPath)
	if err != nil {
		return nil, err
	}
	result.Skill = skill.Name
	result.Tool = toolKey

	if err := s.commitTarget(skill.ID, toolKey, result); err != nil {
		return nil, err
	}
	s.logger.Info("synced skill", "skill", skill.Name, "tool", toolKey, "mode", string(result.ModeUsed))
	return result, nil
}

// writeTarget realizes the projection on disk and reports the mode
// actually used. The completion timestamp is taken after the write is
// durable, which keeps synced_at monotonic per target.
func (s *Syncer) writeTarget(skill *types.ManagedSkill, mode types.SyncMode, targetPath string) (*types.SyncResult, error) {
	existed, err := fsops.Exists(targetPath)
	if err != nil {
		return nil, &SyncError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to stat target '%s'", targetPath),
			Skill:   skill.Name,
			Err:     err,
		}
	}

	if existed {
		// An up-to-date target is a no-op that still refreshes synced_at.
		// The short-circuits are mode-aware: an existing symlink only
		// satisfies a link request, and never a copy request, where the
		// fingerprint would match through the link without materializing
		// anything.
		switch mode {
		case types.ModeLink:
			if fsops.IsSameLink(targetPath, skill.CentralPath) {
				return &types.SyncResult{
					ModeUsed:   types.ModeLink,
					TargetPath: targetPath,
					Replaced:   false,
					SyncedAt:   time.Now(),
				}, nil
			}
		case types.ModeCopy:
			if !fsops.IsSymlink(targetPath) {
				if hash, err := fingerprint.Dir(targetPath); err == nil && hash == skill.Fingerprint {
					return &types.SyncResult{
						ModeUsed:   types.ModeCopy,
						TargetPath: targetPath,
						Replaced:   false,
						SyncedAt:   time.Now(),
					}, nil
				}
			}
		}
	}

	modeUsed := mode
	if mode == types.ModeLink {
		if err := s.writeLink(skill.CentralPath, targetPath); err == nil {
			return &types.SyncResult{
				ModeUsed:   types.ModeLink,
				TargetPath: targetPath,
				Replaced:   existed,
				SyncedAt:   time.Now(),
			}, nil
		}
		// Linking unsupported on this host or path; degrade to copy and
		// report the mode actually used.
		s.logger.Warn("symlink failed, falling back to copy", "skill", skill.Name, "path", targetPath)
		modeUsed = types.ModeCopy
	}

	staged := fsops.StagingDir(targetPath)
	defer os.RemoveAll(staged)
	if err := fsops.CopyDir(skill.CentralPath, staged); err != nil {
		return nil, &SyncError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to stage copy for '%s'", targetPath),
			Skill:   skill.Name,
			Err:     err,
		}
	}
	if err := fsops.ReplaceDir(staged, targetPath); err != nil {
		return nil, &SyncError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to install target '%s'", targetPath),
			Skill:   skill.Name,
			Err:     err,
		}
	}

	return &types.SyncResult{
		ModeUsed:   modeUsed,
		TargetPath: targetPath,
		Replaced:   existed,
		SyncedAt:   time.Now(),
	}, nil
}

// writeLink installs a symlink at targetPath. The link is staged at a
// sibling path and renamed into place, so an existing file or symlink is
// swapped without a window where the target is missing. Only a directory
// target needs removal first, since rename cannot replace one.
func (s *Syncer) writeLink(centralPath, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return err
	}
	if info, err := os.Lstat(targetPath); err == nil && info.IsDir() {
		if err := fsops.RemovePath(targetPath); err != nil {
			return err
		}
	}

	staged := fsops.StagingDir(targetPath)
	if err := fsops.RemovePath(staged); err != nil {
		return err
	}
	if err := os.Symlink(centralPath, staged); err != nil {
		return err
	}
	if err := os.Rename(staged, targetPath); err != nil {
		os.Remove(staged)
		return err
	}
	return nil
}

// commitTarget upserts the target record and the skill's last sync time
// under the per-skill record lock, re-reading the registry so concurrent
// target syncs never lose each other's records.
func (s *Syncer) commitTarget(skillID, toolKey string, result *types.SyncResult) error {
	mu := s.recordMutex(skillID)
	mu.Lock()
	defer mu.Unlock()

	fresh, err := s.store.Get(skillID)
	if err != nil {
		return err
	}

	syncedAt := result.SyncedAt
	target := types.SkillTarget{
		Tool:       toolKey,
		Mode:       result.ModeUsed,
		Status:     "synced",
		TargetPath: result.TargetPath,
		SyncedAt:   &syncedAt,
	}

	replaced := false
	for i := range fresh.Targets {
		if fresh.Targets[i].Tool == toolKey {
			fresh.Targets[i] = target
			replaced = true
			break
		}
	}
	if !replaced {
		fresh.Targets = append(fresh.Targets, target)
	}
	if fresh.LastSyncAt == nil || syncedAt.After(*fresh.LastSyncAt) {
		fresh.LastSyncAt = &syncedAt
	}
	return s.store.Upsert(fresh)
}

// Unsync removes a skill's projection from one tool and drops the
// target record. An already deleted artifact is not an error.
func (s *Syncer) Unsync(ctx context.Context, skill *types.ManagedSkill, toolKey string) error {
	if skill == nil || skill.ID == "" {
		return &SyncError{
			Type:    ErrTypeNotFound,
			Message: "skill cannot be nil",
		}
	}

	target := skill.FindTarget(toolKey)
	if target == nil {
		return &SyncError{
			Type:    ErrTypeNotFound,
			Message: fmt.Sprintf("skill '%s' has no target for tool '%s'", skill.Name, toolKey),
			Skill:   skill.Name,
			Tool:    toolKey,
		}
	}

	mu := s.targetMutex(fingerprint.TargetKey(toolKey, target.TargetPath))
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &SyncError{
			Type:    ErrTypeCancelled,
			Message: "unsync cancelled",
			Skill:   skill.Name,
			Tool:    toolKey,
			Err:     err,
		}
	}

	if err := fsops.RemovePath(target.TargetPath); err != nil {
		return &SyncError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to remove target '%s'", target.TargetPath),
			Skill:   skill.Name,
			Tool:    toolKey,
			Err:     err,
		}
	}

	recordMu := s.recordMutex(skill.ID)
	recordMu.Lock()
	defer recordMu.Unlock()

	fresh, err := s.store.Get(skill.ID)
	if err != nil {
		return err
	}
	kept := fresh.Targets[:0]
	for _, t := range fresh.Targets {
		if t.Tool != toolKey {
			kept = append(kept, t)
		}
	}
	fresh.Targets = kept
	return s.store.Upsert(fresh)
}
