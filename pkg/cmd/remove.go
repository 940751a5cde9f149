package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:   "remove <skill>",
	Short: "删除一个 skill（含所有工具中的同步内容）",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("用法: ai-toolbox remove <skill>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRemove(args[0])
	},
}

func executeRemove(idOrName string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	skill, err := a.store.Find(idOrName)
	if err != nil {
		return err
	}

	fmt.Printf("Removing skill '%s' and %d synced target(s)...\n", skill.Name, len(skill.Targets))

	if err := a.store.Delete(skill.ID); err != nil {
		return err
	}

	fmt.Printf("Successfully removed skill '%s'\n", skill.Name)
	return nil
}
