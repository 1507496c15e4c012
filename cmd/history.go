package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyCategory string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved formulations",
	Long: `List saved formulations, newest first.

Running bare 'forma history' is the same as 'forma history list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved formulations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved formulation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(cmd, args[0])
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved formulation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyDeleteRun(cmd, args[0])
	},
}

func init() {
	historyCmd.PersistentFlags().StringVarP(&historyCategory, "category", "c", "", "Filter by product category")
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "l", 20, "Maximum number of formulations to show")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	formulations, err := s.ListFormulations(cmd.Context(), historyCategory, historyLimit)
	if err != nil {
		return fmt.Errorf("list formulations: %w", err)
	}

	if len(formulations) == 0 {
		ui.Info("No formulations saved yet. Run 'forma run --input <ref>' to create one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Category", "Input", "Created", "Prompt"})
	for _, f := range formulations {
		prompt := f.Prompt
		if len(prompt) > 60 {
			prompt = prompt[:57] + "..."
		}
		table.Append([]string{
			shortID(f.ID),
			f.Category,
			f.InputRef,
			f.CreatedAt.Format("2006-01-02 15:04"),
			prompt,
		})
	}
	return table.Render()
}

func historyShowRun(cmd *cobra.Command, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	f, err := s.GetFormulation(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("formulation not found: %s", id)
	}

	ui.Info("Formulation %s", f.ID)
	fmt.Fprintf(ui.Out, "  Input:    %s\n", f.InputRef)
	if f.Category != "" {
		fmt.Fprintf(ui.Out, "  Category: %s\n", f.Category)
	}
	fmt.Fprintf(ui.Out, "  Created:  %s\n", f.CreatedAt.Format(time.RFC3339))
	if f.Prompt != "" {
		fmt.Fprintf(ui.Out, "  Prompt:   %s\n", f.Prompt)
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, f.Body)
	return nil
}

func historyDeleteRun(cmd *cobra.Command, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete formulation %s", id)
		return nil
	}

	if err := s.DeleteFormulation(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete formulation: %w", err)
	}
	ui.Success("Deleted formulation %s", id)
	return nil
}

// shortID truncates a ULID for table display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
