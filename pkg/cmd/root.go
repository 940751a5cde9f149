package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ai-toolbox",
	Short: "ai-toolbox CLI",
	Long:  "ai-toolbox CLI 工具入口：集中管理 AI 工具的 skills",

	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},

	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
