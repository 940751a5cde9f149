// Package onboarding discovers skill-like artifacts already living in
// tool directories but not yet tracked centrally, groups them by
// inferred name across tools, flags content conflicts, and imports a
// chosen variant into the central repository without moving files.
package onboarding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AisyIE/ai-toolbox/internal/fingerprint"
	"github.com/AisyIE/ai-toolbox/internal/store"
	"github.com/AisyIE/ai-toolbox/internal/tools"
	"github.com/AisyIE/ai-toolbox/internal/types"
)

// Reconciler scans tool directories against one store and registry.
type Reconciler struct {
	store    *store.Store
	registry *tools.Registry
}

// New creates a reconciler.
func New(st *store.Store, registry *tools.Registry) *Reconciler {
	return &Reconciler{store: st, registry: registry}
}

// Scan builds a fresh onboarding plan from the current filesystem
// state. The same state always produces the same grouping and conflict
// verdicts: groups are keyed by case-normalized name and sorted, and
// conflict detection depends only on the set of fingerprints, never on
// scan order.
func (r *Reconciler) Scan(ctx context.Context) (*types.OnboardingPlan, error) {
	managedTargets, err := r.store.ManagedTargetKeys()
	if err != nil {
		return nil, &OnboardingError{
			Type:    ErrTypeScan,
			Message: "failed to load managed targets",
			Err:     err,
		}
	}
	managedNames, err := r.store.ManagedNames()
	if err != nil {
		return nil, &OnboardingError{
			Type:    ErrTypeScan,
			Message: "failed to load managed names",
			Err:     err,
		}
	}
	centralRoot, err := fingerprint.NormalizePath(r.store.BasePath())
	if err != nil {
		centralRoot = r.store.BasePath()
	}

	scanned := 0
	var variants []types.OnboardingVariant

	for _, tool := range r.registry.Tools() {
		if err := ctx.Err(); err != nil {
			return nil, &OnboardingError{
				Type:    ErrTypeCancelled,
				Message: "scan cancelled",
				Err:     err,
			}
		}
		if !r.registry.IsInstalled(&tool) {
			continue
		}
		scanned++

		detected, err := r.scanToolDir(&tool)
		if err != nil {
			return nil, err
		}
		for _, v := range detected {
			if r.isExcluded(&v, centralRoot, managedTargets, managedNames) {
				continue
			}
			variants = append(variants, v)
		}
	}

	groups := groupVariants(variants)
	return &types.OnboardingPlan{
		TotalToolsScanned: scanned,
		// Counts distinct skill names; copies of the same skill found
		// under several tools form one group and count once.
		TotalSkillsFound:  len(groups),
		Groups:            groups,
	}, nil
}

// scanToolDir lists the skill-shaped entries of one tool's skills
// directory: directories, or symlinks resolving to directories.
func (r *Reconciler) scanToolDir(tool *tools.Tool) ([]types.OnboardingVariant, error) {
	dir := r.registry.SkillsDir(tool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &OnboardingError{
			Type:    ErrTypeScan,
			Message: fmt.Sprintf("failed to read skills directory for tool '%s'", tool.Key),
			Err:     err,
		}
	}

	skip := make(map[string]struct{}, len(tool.SkipEntries))
	for _, name := range tool.SkipEntries {
		skip[name] = struct{}{}
	}

	var variants []types.OnboardingVariant
	for _, entry := range entries {
		if _, skipped := skip[entry.Name()]; skipped {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		isLink, linkTarget := detectLink(path)
		isDir := entry.IsDir()
		if !isDir && isLink {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				isDir = true
			}
		}
		if !isDir {
			continue
		}

		variant := types.OnboardingVariant{
			Tool:       tool.Key,
			ToolLabel:  tool.Label,
			Name:       entry.Name(),
			Path:       path,
			IsLink:     isLink,
			LinkTarget: linkTarget,
		}
		// Unreadable content leaves the fingerprint empty; the variant
		// is still surfaced so the user sees it exists.
		if hash, err := fingerprint.Dir(path); err == nil {
			variant.Fingerprint = hash
		}
		variants = append(variants, variant)
	}
	return variants, nil
}

func (r *Reconciler) isExcluded(v *types.OnboardingVariant, centralRoot string, managedTargets map[string]struct{}, managedNames map[string]struct{}) bool {
	if isUnder(v.Path, centralRoot) || (v.LinkTarget != "" && isUnder(v.LinkTarget, centralRoot)) {
		return true
	}
	if _, ok := managedTargets[fingerprint.TargetKey(v.Tool, v.Path)]; ok {
		return true
	}
	if _, ok := managedNames[strings.ToLower(v.Name)]; ok {
		return true
	}
	return false
}

// groupVariants buckets variants by case-normalized name and computes
// the conflict verdict: a group conflicts iff it holds more than one
// distinct non-empty fingerprint. Equal content never conflicts,
// whether reached through a link or a copy.
func groupVariants(variants []types.OnboardingVariant) []types.OnboardingGroup {
	buckets := make(map[string][]types.OnboardingVariant)
	for _, v := range variants {
		key := strings.ToLower(v.Name)
		buckets[key] = append(buckets[key], v)
	}

	groups := make([]types.OnboardingGroup, 0, len(buckets))
	for name, members := range buckets {
		sort.Slice(members, func(i, j int) bool { return members[i].Tool < members[j].Tool })

		fingerprintTools := make(map[string][]string)
		for _, v := range members {
			if v.Fingerprint != "" {
				fingerprintTools[v.Fingerprint] = append(fingerprintTools[v.Fingerprint], v.Tool)
			}
		}

		for i := range members {
			if members[i].Fingerprint == "" {
				continue
			}
			var conflicting []string
			for hash, toolKeys := range fingerprintTools {
				if hash != members[i].Fingerprint {
					conflicting = append(conflicting, toolKeys...)
				}
			}
			sort.Strings(conflicting)
			members[i].ConflictingTools = conflicting
		}

		groups = append(groups, types.OnboardingGroup{
			Name:        name,
			HasConflict: len(fingerprintTools) > 1,
			Variants:    members,
		})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// ImportGroup adopts one onboarding group into the catalog: the chosen
// variant's content becomes the canonical copy, and every variant keeps
// its current path as a pre-existing target; no file is moved. Tools
// without a variant simply have no target yet.
func (r *Reconciler) ImportGroup(ctx context.Context, group *types.OnboardingGroup, chosenTool string) (*types.ManagedSkill, error) {
	if group == nil || len(group.Variants) == 0 {
		return nil, &OnboardingError{
			Type:    ErrTypeImport,
			Message: "onboarding group is empty",
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &OnboardingError{
			Type:    ErrTypeCancelled,
			Message: "import cancelled",
			Err:     err,
		}
	}

	var chosen *types.OnboardingVariant
	for i := range group.Variants {
		if group.Variants[i].Tool == chosenTool {
			chosen = &group.Variants[i]
			break
		}
	}
	if chosen == nil {
		return nil, &OnboardingError{
			Type:    ErrTypeImport,
			Message: fmt.Sprintf("group '%s' has no variant for tool '%s'", group.Name, chosenTool),
		}
	}

	srcDir := chosen.Path
	if chosen.IsLink {
		resolved, err := filepath.EvalSymlinks(chosen.Path)
		if err != nil {
			return nil, &OnboardingError{
				Type:    ErrTypeImport,
				Message: fmt.Sprintf("failed to resolve linked variant '%s'", chosen.Path),
				Err:     err,
			}
		}
		srcDir = resolved
	}

	now := time.Now()
	skill := &types.ManagedSkill{
		ID:         uuid.NewString(),
		Name:       group.Name,
		SourceType: types.SourceImport,
		SourceRef:  chosen.Path,
		CreatedAt:  now,
		Status:     "active",
	}
	if _, err := r.store.Put(skill, srcDir); err != nil {
		return nil, &OnboardingError{
			Type:    ErrTypeImport,
			Message: fmt.Sprintf("failed to adopt content for '%s'", group.Name),
			Err:     err,
		}
	}

	for _, v := range group.Variants {
		mode := types.ModeCopy
		if v.IsLink {
			mode = types.ModeLink
		}
		syncedAt := now
		skill.Targets = append(skill.Targets, types.SkillTarget{
			Tool:       v.Tool,
			Mode:       mode,
			Status:     "imported",
			TargetPath: v.Path,
			SyncedAt:   &syncedAt,
		})
	}
	if err := r.store.Upsert(skill); err != nil {
		return nil, err
	}
	return skill, nil
}

func detectLink(path string) (bool, string) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false, ""
	}
	target, err := os.Readlink(path)
	if err != nil {
		return true, ""
	}
	return true, target
}

func isUnder(path, base string) bool {
	normalized, err := fingerprint.NormalizePath(path)
	if err != nil {
		normalized = filepath.Clean(path)
	}
	rel, err := filepath.Rel(base, normalized)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
