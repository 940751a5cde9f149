package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AisyIE/ai-toolbox/internal/gitcache"
	"github.com/AisyIE/ai-toolbox/internal/types"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	addSkillName string
	addTools     []string
	addMode      string
)

func init() {
	addCmd.Flags().StringVar(&addSkillName, "skill", "", "要安装的 skill 名称（仓库包含多个 skill 时必填）")
	addCmd.Flags().StringArrayVar(&addTools, "tool", nil, "同步到指定工具（可重复，默认为偏好/已安装工具）")
	addCmd.Flags().StringVar(&addMode, "mode", "", "同步方式: link 或 copy（默认按工具偏好）")
	rootCmd.AddCommand(addCmd)
}

var addCmd = &cobra.Command{
	Use:   "add <url|path>",
	Short: "从 GitHub 仓库或本地目录安装 skill",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("用法: ai-toolbox add <github_url|local_path>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := executeAdd(args[0], addSkillName, addTools, addMode); err != nil {
			fmt.Printf("Error adding skill: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func executeAdd(source, skillName string, toolKeys []string, modeStr string) error {
	mode, err := parseMode(modeStr)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var skill *types.ManagedSkill
	if info, statErr := os.Stat(source); statErr == nil && info.IsDir() {
		skill, err = installLocal(a, source, skillName)
	} else {
		skill, err = installGit(ctx, a, source, skillName)
	}
	if err != nil {
		return err
	}

	color.Green("Installed skill '%s' into %s", skill.Name, skill.CentralPath)

	if len(toolKeys) == 0 {
		toolKeys = a.syncTools()
	}
	result := types.InstallResult{Skill: *skill}
	for _, toolKey := range toolKeys {
		synced, syncErr := a.syncer.Sync(ctx, skill, toolKey, mode)
		if syncErr != nil {
			result.Failed = append(result.Failed, types.TargetError{Tool: toolKey, Err: syncErr})
			continue
		}
		result.Synced = append(result.Synced, *synced)
	}

	printSyncOutcome(result.Synced, result.Failed)
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d target(s) failed", len(result.Failed))
	}
	return nil
}

func installLocal(a *app, source, skillName string) (*types.ManagedSkill, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", source, err)
	}
	name := skillName
	if name == "" {
		name = filepath.Base(abs)
	}

	skill := newSkillRecord(name, types.SourceLocal, abs)
	if _, err := a.store.Put(skill, abs); err != nil {
		return nil, err
	}
	return skill, nil
}

func installGit(ctx context.Context, a *app, source, skillName string) (*types.ManagedSkill, error) {
	workDir, err := a.cache.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	candidates, err := gitcache.ListCandidates(workDir)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no skills found at '%s'", source)
	}

	chosen, err := pickCandidate(candidates, skillName)
	if err != nil {
		return nil, err
	}

	sourceRef, err := gitcache.RefWithSubpath(source, chosen.Subpath)
	if err != nil {
		return nil, err
	}

	skill := newSkillRecord(chosen.Name, types.SourceGit, sourceRef)
	srcDir := filepath.Join(workDir, filepath.FromSlash(chosen.Subpath))
	if _, err := a.store.Put(skill, srcDir); err != nil {
		return nil, err
	}
	return skill, nil
}

func pickCandidate(candidates []types.GitSkillCandidate, skillName string) (*types.GitSkillCandidate, error) {
	if skillName == "" {
		if len(candidates) == 1 {
			return &candidates[0], nil
		}
		fmt.Println("该仓库包含多个 skill，请用 --skill 指定其中一个：")
		for _, c := range candidates {
			fmt.Printf("  %s\t%s\n", c.Name, c.Description)
		}
		return nil, errors.New("multiple skills found; re-run with --skill <name>")
	}
	for i := range candidates {
		if candidates[i].Name == skillName {
			return &candidates[i], nil
		}
	}
	return nil, fmt.Errorf("skill '%s' not found in repository", skillName)
}

func newSkillRecord(name string, sourceType types.SourceType, sourceRef string) *types.ManagedSkill {
	now := time.Now()
	return &types.ManagedSkill{
		ID:         uuid.NewString(),
		Name:       name,
		SourceType: sourceType,
		SourceRef:  sourceRef,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     "active",
	}
}

func parseMode(modeStr string) (types.SyncMode, error) {
	switch modeStr {
	case "":
		return "", nil
	case "link":
		return types.ModeLink, nil
	case "copy":
		return types.ModeCopy, nil
	default:
		return "", fmt.Errorf("invalid mode '%s' (expected link or copy)", modeStr)
	}
}

func printSyncOutcome(synced []types.SyncResult, failed []types.TargetError) {
	for _, r := range synced {
		color.Green("✓ %s → %s (%s)", r.Tool, r.TargetPath, r.ModeUsed)
	}
	for _, f := range failed {
		color.Red("✗ %s: %v", f.Tool, f.Err)
	}
}
