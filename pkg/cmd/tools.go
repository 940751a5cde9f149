package cmd

import (
	"fmt"

	"github.com/AisyIE/ai-toolbox/internal/prefs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(toolsCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "列出支持的 AI 工具及安装状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeTools()
	},
}

func executeTools() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	status := a.registry.Status(prefs.KnownTools())
	newly := make(map[string]struct{}, len(status.NewlyInstalled))
	for _, key := range status.NewlyInstalled {
		newly[key] = struct{}{}
	}

	for _, tool := range status.Tools {
		marker := color.New(color.Faint).Sprint("-")
		if tool.Installed {
			marker = color.GreenString("✓")
		}
		line := fmt.Sprintf("%s %s (%s)", marker, tool.Label, tool.Key)
		if _, isNew := newly[tool.Key]; isNew {
			line += color.YellowString(" [new]")
		}
		fmt.Println(line)
	}

	// The known-tool set is only committed by 'sync --new', so the hint
	// stays visible until the new tools actually get their skills.
	if len(status.NewlyInstalled) > 0 {
		fmt.Printf("\n%d newly installed tool(s). Run 'ai-toolbox sync --new' to sync skills into them.\n", len(status.NewlyInstalled))
	}
	return nil
}
