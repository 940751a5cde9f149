// Package types holds the shared data model for the skill
// synchronization engine: managed skills, their per-tool targets,
// tool metadata and the result types returned by sync, update and
// onboarding operations.
package types

import "time"

// SourceType tells where a skill's canonical content came from.
type SourceType string

const (
	SourceLocal  SourceType = "local"
	SourceGit    SourceType = "git"
	SourceImport SourceType = "import"
)

// SyncMode is how a skill is projected into a tool directory.
type SyncMode string

const (
	ModeCopy SyncMode = "copy"
	ModeLink SyncMode = "link"
)

// ManagedSkill is one centrally stored skill bundle. CentralPath is the
// single writable home of the content; every target is derived from it.
type ManagedSkill struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	SourceType  SourceType    `json:"source_type"`
	SourceRef   string        `json:"source_ref,omitempty"`
	CentralPath string        `json:"central_path"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	LastSyncAt  *time.Time    `json:"last_sync_at,omitempty"`
	Status      string        `json:"status,omitempty"`
	Targets     []SkillTarget `json:"targets,omitempty"`
}

// SkillTarget records one projection of a skill into a tool directory.
// At most one target exists per (skill, tool) pair.
type SkillTarget struct {
	Tool       string     `json:"tool"`
	Mode       SyncMode   `json:"mode"`
	Status     string     `json:"status,omitempty"`
	TargetPath string     `json:"target_path"`
	SyncedAt   *time.Time `json:"synced_at,omitempty"`
}

// ToolInfo describes one known external tool.
type ToolInfo struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Installed bool   `json:"installed"`
}

// ToolStatus is a point-in-time view over the tool registry.
// NewlyInstalled lists keys installed since the last observation.
type ToolStatus struct {
	Tools          []ToolInfo `json:"tools"`
	Installed      []string   `json:"installed"`
	NewlyInstalled []string   `json:"newly_installed"`
}

// OnboardingVariant is one skill-like artifact found on disk during an
// onboarding scan. Fingerprint is empty when the content is unreadable.
type OnboardingVariant struct {
	Tool             string   `json:"tool"`
	ToolLabel        string   `json:"tool_label"`
	Name             string   `json:"name"`
	Path             string   `json:"path"`
	Fingerprint      string   `json:"fingerprint,omitempty"`
	IsLink           bool     `json:"is_link"`
	LinkTarget       string   `json:"link_target,omitempty"`
	ConflictingTools []string `json:"conflicting_tools,omitempty"`
}

// OnboardingGroup collects all variants sharing one inferred skill name.
// HasConflict is true when the variants disagree in content.
type OnboardingGroup struct {
	Name        string              `json:"name"`
	HasConflict bool                `json:"has_conflict"`
	Variants    []OnboardingVariant `json:"variants"`
}

// OnboardingPlan is a point-in-time import proposal; never persisted.
type OnboardingPlan struct {
	TotalToolsScanned int               `json:"total_tools_scanned"`
	TotalSkillsFound  int               `json:"total_skills_found"`
	Groups            []OnboardingGroup `json:"groups"`
}

// GitSkillCandidate is one selectable skill found inside a fetched git
// source, used when a ref contains more than one skill.
type GitSkillCandidate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Subpath     string `json:"subpath"`
}

// SyncResult reports one completed sync of a skill into a tool.
// ModeUsed may differ from the requested mode when linking is
// unsupported and the engine fell back to copy.
type SyncResult struct {
	Skill      string    `json:"skill"`
	Tool       string    `json:"tool"`
	ModeUsed   SyncMode  `json:"mode_used"`
	TargetPath string    `json:"target_path"`
	Replaced   bool      `json:"replaced"`
	SyncedAt   time.Time `json:"synced_at"`
}

// TargetError is one per-target failure inside a bulk operation.
type TargetError struct {
	Tool string `json:"tool"`
	Path string `json:"path,omitempty"`
	Err  error  `json:"-"`
}

// UpdateResult summarizes an update pass over one skill's targets.
// UpdatedTargets holds successes only; Failed carries the rest.
type UpdateResult struct {
	Skill          string        `json:"skill"`
	Changed        bool          `json:"changed"`
	UpdatedTargets []string      `json:"updated_targets"`
	Failed         []TargetError `json:"failed,omitempty"`
}

// InstallResult summarizes a fresh install plus its initial syncs.
type InstallResult struct {
	Skill  ManagedSkill  `json:"skill"`
	Synced []SyncResult  `json:"synced,omitempty"`
	Failed []TargetError `json:"failed,omitempty"`
}

// FindTarget returns the skill's target for a tool, or nil.
func (s *ManagedSkill) FindTarget(tool string) *SkillTarget {
	for i := range s.Targets {
		if s.Targets[i].Tool == tool {
			return &s.Targets[i]
		}
	}
	return nil
}
