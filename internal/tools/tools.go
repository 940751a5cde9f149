// Package tools is the read model over known external AI coding tools:
// which ones exist, whether each is installed on this host, where its
// skills directory lives, and which sync mode it prefers.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/AisyIE/ai-toolbox/internal/types"
)

// Tool is one built-in tool definition. Paths are relative to the home
// directory; DetectDir existing means the tool is installed.
type Tool struct {
	Key       string
	Label     string
	SkillsDir string
	DetectDir string
	// ForceCopy marks tools whose skill loading cannot follow symlinks.
	ForceCopy bool
	// SkipEntries are directory names never treated as skills.
	SkipEntries []string
}

var builtinTools = []Tool{
	{Key: "claude_code", Label: "Claude Code", SkillsDir: ".claude/skills", DetectDir: ".claude"},
	{Key: "codex", Label: "Codex", SkillsDir: ".codex/skills", DetectDir: ".codex", SkipEntries: []string{".system"}},
	{Key: "gemini_cli", Label: "Gemini CLI", SkillsDir: ".gemini/skills", DetectDir: ".gemini"},
	{Key: "cursor", Label: "Cursor", SkillsDir: ".cursor/skills", DetectDir: ".cursor", ForceCopy: true},
	{Key: "opencode", Label: "OpenCode", SkillsDir: ".config/opencode/skill", DetectDir: ".config/opencode"},
	{Key: "antigravity", Label: "Antigravity", SkillsDir: ".gemini/antigravity/skills", DetectDir: ".gemini/antigravity"},
	{Key: "amp", Label: "Amp", SkillsDir: ".config/agents/skills", DetectDir: ".config/agents"},
	{Key: "kilo_code", Label: "Kilo Code", SkillsDir: ".kilocode/skills", DetectDir: ".kilocode"},
	{Key: "roo_code", Label: "Roo Code", SkillsDir: ".roo/skills", DetectDir: ".roo"},
	{Key: "goose", Label: "Goose", SkillsDir: ".config/goose/skills", DetectDir: ".config/goose"},
	{Key: "github_copilot", Label: "GitHub Copilot", SkillsDir: ".copilot/skills", DetectDir: ".copilot"},
	{Key: "clawdbot", Label: "Clawdbot", SkillsDir: ".clawdbot/skills", DetectDir: ".clawdbot"},
	{Key: "droid", Label: "Droid", SkillsDir: ".factory/skills", DetectDir: ".factory"},
	{Key: "windsurf", Label: "Windsurf", SkillsDir: ".codeium/windsurf/skills", DetectDir: ".codeium/windsurf"},
}

// Registry answers tool questions against one host home directory.
type Registry struct {
	homeDir string
	tools   []Tool
}

// NewRegistry builds a registry rooted at the current user's home.
func NewRegistry() (*Registry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewRegistryAt(home), nil
}

// NewRegistryAt builds a registry rooted at an explicit home directory.
func NewRegistryAt(homeDir string) *Registry {
	tools := make([]Tool, len(builtinTools))
	copy(tools, builtinTools)
	return &Registry{homeDir: homeDir, tools: tools}
}

// Tools returns every known tool definition.
func (r *Registry) Tools() []Tool {
	return r.tools
}

// ByKey finds one tool definition.
func (r *Registry) ByKey(key string) (*Tool, error) {
	for i := range r.tools {
		if r.tools[i].Key == key {
			return &r.tools[i], nil
		}
	}
	return nil, fmt.Errorf("unknown tool '%s'", key)
}

// IsInstalled reports whether a tool's detect directory exists.
func (r *Registry) IsInstalled(tool *Tool) bool {
	info, err := os.Stat(filepath.Join(r.homeDir, filepath.FromSlash(tool.DetectDir)))
	return err == nil && info.IsDir()
}

// List returns ToolInfo for every known tool with installation state.
func (r *Registry) List() []types.ToolInfo {
	infos := make([]types.ToolInfo, 0, len(r.tools))
	for i := range r.tools {
		infos = append(infos, types.ToolInfo{
			Key:       r.tools[i].Key,
			Label:     r.tools[i].Label,
			Installed: r.IsInstalled(&r.tools[i]),
		})
	}
	return infos
}

// Installed returns the keys of all installed tools, sorted.
func (r *Registry) Installed() []string {
	var keys []string
	for i := range r.tools {
		if r.IsInstalled(&r.tools[i]) {
			keys = append(keys, r.tools[i].Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// SkillsDir returns the absolute skills directory for a tool.
func (r *Registry) SkillsDir(tool *Tool) string {
	return filepath.Join(r.homeDir, filepath.FromSlash(tool.SkillsDir))
}

// TargetPathFor computes the deterministic target path for projecting a
// skill into a tool, so re-scans and re-syncs are idempotent.
func (r *Registry) TargetPathFor(toolKey, skillName string) (string, error) {
	tool, err := r.ByKey(toolKey)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.SkillsDir(tool), skillName), nil
}

// PreferredMode returns the default sync mode for a tool. Tools that do
// not follow symlinks when loading skills get copy mode.
func (r *Registry) PreferredMode(toolKey string) (types.SyncMode, error) {
	tool, err := r.ByKey(toolKey)
	if err != nil {
		return "", err
	}
	if tool.ForceCopy {
		return types.ModeCopy, nil
	}
	return types.ModeLink, nil
}

// Status compares the current installation state with previously
// observed tool keys and reports which tools appeared since then.
// The invariant newly_installed ⊆ installed ⊆ known keys always holds.
func (r *Registry) Status(previouslyKnown []string) types.ToolStatus {
	known := make(map[string]struct{}, len(previouslyKnown))
	for _, key := range previouslyKnown {
		known[key] = struct{}{}
	}

	installed := r.Installed()
	var newly []string
	for _, key := range installed {
		if _, ok := known[key]; !ok {
			newly = append(newly, key)
		}
	}

	return types.ToolStatus{
		Tools:          r.List(),
		Installed:      installed,
		NewlyInstalled: newly,
	}
}
