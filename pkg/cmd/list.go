package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

const (
	dateFormat = "2006-01-02 15:04"
	colName    = "Name"
	colSource  = "Source"
	colUpdated = "Updated At"
	colTargets = "Targets"
	emptyMsg   = "No skills installed yet."
	usageHint  = "Use 'ai-toolbox add <url|path>' to install a skill."
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有已管理的 skills",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeList()
	},
}

// executeList loads the registry and displays a table of all managed skills.
func executeList() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	skills, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(skills) == 0 {
		fmt.Println(emptyMsg)
		fmt.Println(usageHint)
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
	table.Header(colName, colSource, colUpdated, colTargets)

	for _, skill := range skills {
		source := string(skill.SourceType)
		if skill.SourceRef != "" {
			source = fmt.Sprintf("%s (%s)", skill.SourceType, skill.SourceRef)
		}
		table.Append(skill.Name, source, skill.UpdatedAt.Format(dateFormat), fmt.Sprintf("%d", len(skill.Targets)))
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Printf("\nTotal: %d skills\n", len(skills))

	return nil
}
