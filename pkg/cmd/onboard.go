package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

var onboardUseTool string

func init() {
	onboardImportCmd.Flags().StringVar(&onboardUseTool, "use", "", "以哪个工具中的版本作为标准内容")
	onboardImportCmd.MarkFlagRequired("use")
	onboardCmd.AddCommand(onboardImportCmd)
	rootCmd.AddCommand(onboardCmd)
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "扫描各工具目录中未纳管的 skills",
	Long: `扫描所有已安装工具的 skills 目录，找出还没有纳入集中管理的
skill，并按名称归组。同名但内容不同的版本会被标记为冲突。

示例:
  ai-toolbox onboard
  ai-toolbox onboard import prompt-engineer --use claude_code`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeOnboardScan()
	},
}

var onboardImportCmd = &cobra.Command{
	Use:   "import <group>",
	Short: "把扫描到的 skill 纳入集中管理",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("用法: ai-toolbox onboard import <group> --use <tool>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeOnboardImport(args[0], onboardUseTool)
	},
}

func executeOnboardScan() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	plan, err := a.reconciler.Scan(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d tool(s), found %d unmanaged skill(s)\n\n", plan.TotalToolsScanned, plan.TotalSkillsFound)

	if len(plan.Groups) == 0 {
		fmt.Println("Nothing to onboard.")
		return nil
	}

	cnf := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
	}
	table := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(cnf))
	table.Header("Skill", "Tools", "Status")

	for _, group := range plan.Groups {
		var toolLabels []string
		for _, v := range group.Variants {
			label := v.Tool
			if v.IsLink {
				label += " (link)"
			}
			toolLabels = append(toolLabels, label)
		}
		status := "ok"
		if group.HasConflict {
			status = color.RedString("conflict")
		}
		table.Append(group.Name, strings.Join(toolLabels, ", "), status)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Println("\nUse 'ai-toolbox onboard import <skill> --use <tool>' to bring one under management.")
	return nil
}

func executeOnboardImport(groupName, toolKey string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	plan, err := a.reconciler.Scan(ctx)
	if err != nil {
		return err
	}

	for i := range plan.Groups {
		if !strings.EqualFold(plan.Groups[i].Name, groupName) {
			continue
		}
		skill, err := a.reconciler.ImportGroup(ctx, &plan.Groups[i], toolKey)
		if err != nil {
			return err
		}
		color.Green("Imported skill '%s' with %d target(s); content taken from %s", skill.Name, len(skill.Targets), toolKey)
		return nil
	}
	return fmt.Errorf("no unmanaged skill named '%s' found", groupName)
}
