package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(unsyncCmd)
}

var unsyncCmd = &cobra.Command{
	Use:   "unsync <skill> <tool>",
	Short: "移除工具中已同步的 skill",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return errors.New("用法: ai-toolbox unsync <skill> <tool>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeUnsync(args[0], args[1])
	},
}

func executeUnsync(idOrName, toolKey string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	skill, err := a.store.Find(idOrName)
	if err != nil {
		return err
	}

	if err := a.syncer.Unsync(context.Background(), skill, toolKey); err != nil {
		return err
	}

	fmt.Printf("Successfully unsynced skill '%s' from '%s'\n", skill.Name, toolKey)
	return nil
}
