package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AisyIE/ai-toolbox/internal/fsops"
	"github.com/AisyIE/ai-toolbox/internal/types"
)

const maxConcurrentSyncs = 4 // Limit concurrent target writes during bulk operations.

// SourceCache is the slice of the git cache the updater needs.
type SourceCache interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// Update re-fetches a skill's source when it has one, refreshes the
// central content if the fingerprint changed, and re-syncs every
// existing target. Target syncs run independently; failures are
// collected per target and never abort the remaining ones.
func (s *Syncer) Update(ctx context.Context, skill *types.ManagedSkill, cache SourceCache) (*types.UpdateResult, error) {
	if skill == nil || skill.ID == "" {
		return nil, &SyncError{
			Type:    ErrTypeNotFound,
			Message: "skill cannot be nil",
		}
	}

	result := &types.UpdateResult{Skill: skill.Name}

	srcDir := ""
	switch skill.SourceType {
	case types.SourceGit:
		if cache == nil {
			return nil, &SyncError{
				Type:    ErrTypeNotFound,
				Message: fmt.Sprintf("skill '%s' has a git source but no cache is available", skill.Name),
				Skill:   skill.Name,
			}
		}
		// The fetcher materializes the ref's subtree at the working copy
		// root, so the copy itself is the source bundle.
		workCopy, err := cache.Fetch(ctx, skill.SourceRef)
		if err != nil {
			return nil, err
		}
		srcDir = workCopy
	case types.SourceLocal:
		if skill.SourceRef != "" {
			if exists, err := fsops.Exists(skill.SourceRef); err == nil && exists {
				srcDir = skill.SourceRef
			}
		}
	}

	if srcDir != "" {
		changed, err := s.store.Put(skill, srcDir)
		if err != nil {
			return nil, err
		}
		result.Changed = changed
	}

	updated, failed := s.syncTargets(ctx, skill, skill.Targets)
	result.UpdatedTargets = updated
	result.Failed = failed
	return result, nil
}

// SyncAllNew projects every managed skill into the given tools, used
// when new tool installations are detected. Per-pair failures are
// collected without blocking the remaining pairs.
func (s *Syncer) SyncAllNew(ctx context.Context, toolKeys []string) ([]types.SyncResult, []types.TargetError) {
	skills, err := s.store.Load()
	if err != nil {
		return nil, []types.TargetError{{Err: err}}
	}

	var (
		mu      sync.Mutex
		results []types.SyncResult
		failed  []types.TargetError
	)
	sem := make(chan struct{}, maxConcurrentSyncs)
	var wg sync.WaitGroup

	for i := range skills {
		skill := skills[i]
		for _, toolKey := range toolKeys {
			if skill.FindTarget(toolKey) != nil {
				continue
			}
			wg.Add(1)
			go func(skill types.ManagedSkill, toolKey string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				res, err := s.Sync(ctx, &skill, toolKey, "")
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = append(failed, types.TargetError{Tool: toolKey, Err: err})
					return
				}
				results = append(results, *res)
			}(skill, toolKey)
		}
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Skill != results[j].Skill {
			return results[i].Skill < results[j].Skill
		}
		return results[i].Tool < results[j].Tool
	})
	return results, failed
}

// syncTargets re-syncs one skill into each of the given targets
// concurrently, returning the tools that succeeded in sorted order and
// the per-target failures.
func (s *Syncer) syncTargets(ctx context.Context, skill *types.ManagedSkill, targets []types.SkillTarget) ([]string, []types.TargetError) {
	var (
		mu      sync.Mutex
		updated []string
		failed  []types.TargetError
	)
	sem := make(chan struct{}, maxConcurrentSyncs)
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		go func(target types.SkillTarget) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			_, err := s.Sync(ctx, skill, target.Tool, target.Mode)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("target sync failed", err, "skill", skill.Name, "tool", target.Tool)
				failed = append(failed, types.TargetError{
					Tool: target.Tool,
					Path: target.TargetPath,
					Err:  err,
				})
				return
			}
			updated = append(updated, target.Tool)
		}(target)
	}
	wg.Wait()

	sort.Strings(updated)
	return updated, failed
}
