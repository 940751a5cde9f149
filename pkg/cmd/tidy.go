package cmd

import (
	"context"
	"fmt"

	"github.com/AisyIE/ai-toolbox/internal/tidy"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tidyCmd)
}

var tidyCmd = &cobra.Command{
	Use:   "tidy",
	Short: "清理失效的同步记录和孤立链接",
	Long: `清理失效的同步记录和孤立的符号链接。

此命令执行两个清理操作：
  1. 移除注册表中指向已不存在文件的同步记录
  2. 删除工具目录中指向中心仓库但无人管理的符号链接

示例:
  ai-toolbox tidy`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeTidy()
	},
}

func executeTidy() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	tidier := tidy.NewTidier(a.store, a.registry)
	ctx := context.Background()

	fmt.Println("正在清理失效的同步记录...")

	report, err := tidier.Tidy(ctx)
	if err != nil {
		return fmt.Errorf("清理失败: %w", err)
	}

	fmt.Println("\n清理完成！")

	if report.StaleTargetRecords > 0 {
		fmt.Printf("• 移除了 %d 条失效的同步记录\n", report.StaleTargetRecords)
	}

	if report.OrphanedSymlinks > 0 {
		fmt.Printf("• 删除了 %d 个孤立的符号链接\n", report.OrphanedSymlinks)
	}

	if report.StaleTargetRecords == 0 && report.OrphanedSymlinks == 0 {
		fmt.Println("• 没有发现需要清理的项目")
	}

	fmt.Printf("\n已检查 %d 个技能，扫描了 %d 个工具目录\n", report.SkillsChecked, report.ToolsScanned)

	return nil
}
