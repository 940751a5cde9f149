package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/AisyIE/ai-toolbox/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var updateAll bool

func init() {
	updateCmd.Flags().BoolVar(&updateAll, "all", false, "更新所有 skill")
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update [skill]",
	Short: "重新拉取 skill 源并刷新所有同步目标",
	Args: func(cmd *cobra.Command, args []string) error {
		if updateAll {
			if len(args) != 0 {
				return errors.New("--all 不接受其它参数")
			}
			return nil
		}
		if len(args) != 1 {
			return errors.New("用法: ai-toolbox update <skill> 或 ai-toolbox update --all")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateAll {
			return executeUpdateAll()
		}
		return executeUpdate(args[0])
	},
}

func executeUpdate(idOrName string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	skill, err := a.store.Find(idOrName)
	if err != nil {
		return err
	}

	result, err := a.syncer.Update(context.Background(), skill, a.cache)
	if err != nil {
		return err
	}

	printUpdateResult(result)
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d target(s) failed", len(result.Failed))
	}
	return nil
}

func executeUpdateAll() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	skills, err := a.store.Load()
	if err != nil {
		return err
	}
	if len(skills) == 0 {
		fmt.Println(emptyMsg)
		return nil
	}

	ctx := context.Background()
	failures := 0
	for i := range skills {
		result, err := a.syncer.Update(ctx, &skills[i], a.cache)
		if err != nil {
			color.Red("✗ %s: %v", skills[i].Name, err)
			failures++
			continue
		}
		printUpdateResult(result)
		failures += len(result.Failed)
	}

	if failures > 0 {
		return fmt.Errorf("%d update(s) failed", failures)
	}
	return nil
}

func printUpdateResult(result *types.UpdateResult) {
	if result.Changed {
		color.Green("Updated skill '%s' (%d target(s) refreshed)", result.Skill, len(result.UpdatedTargets))
	} else {
		fmt.Printf("Skill '%s' is already up to date\n", result.Skill)
	}
	for _, f := range result.Failed {
		color.Red("✗ %s: %v", f.Tool, f.Err)
	}
}
