package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/AisyIE/ai-toolbox/internal/prefs"
	"github.com/spf13/cobra"
)

var (
	syncMode string
	syncNew  bool
)

func init() {
	syncCmd.Flags().StringVar(&syncMode, "mode", "", "同步方式: link 或 copy（默认按工具偏好）")
	syncCmd.Flags().BoolVar(&syncNew, "new", false, "把所有 skill 同步到新检测到的工具")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync <skill> <tool>",
	Short: "把 skill 同步到指定工具",
	Long: `把一个 skill 同步到指定工具的 skills 目录。

命令格式: ai-toolbox sync <skill> <tool> [--mode link|copy]

示例:
  ai-toolbox sync prompt-engineer claude_code
  ai-toolbox sync prompt-engineer cursor --mode copy
  ai-toolbox sync --new`,
	Args: func(cmd *cobra.Command, args []string) error {
		if syncNew {
			if len(args) != 0 {
				return errors.New("--new 不接受其它参数")
			}
			return nil
		}
		if len(args) != 2 {
			return errors.New("用法: ai-toolbox sync <skill> <tool>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncNew {
			return executeSyncNew()
		}
		return executeSync(args[0], args[1], syncMode)
	},
}

func executeSync(idOrName, toolKey, modeStr string) error {
	mode, err := parseMode(modeStr)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	skill, err := a.store.Find(idOrName)
	if err != nil {
		return err
	}

	result, err := a.syncer.Sync(context.Background(), skill, toolKey, mode)
	if err != nil {
		return err
	}

	verb := "Synced"
	if result.Replaced {
		verb = "Replaced"
	}
	fmt.Printf("%s skill '%s' → %s (%s)\n", verb, skill.Name, result.TargetPath, result.ModeUsed)
	return nil
}

// executeSyncNew pushes every managed skill to tools that appeared since
// the last run, then records the new tool set.
func executeSyncNew() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	status := a.registry.Status(prefs.KnownTools())
	if len(status.NewlyInstalled) == 0 {
		fmt.Println("No newly installed tools detected.")
		return nil
	}

	fmt.Printf("Newly installed tools: %v\n", status.NewlyInstalled)

	synced, failed := a.syncer.SyncAllNew(context.Background(), status.NewlyInstalled)
	printSyncOutcome(synced, failed)

	if err := prefs.CommitKnownTools(status.Installed); err != nil {
		return fmt.Errorf("failed to record known tools: %w", err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d target(s) failed", len(failed))
	}
	return nil
}
