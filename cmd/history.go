package cmd

import (
	"fmt"

	"github.com/bnema/wayidle/internal/config"
	"github.com/bnema/wayidle/internal/history"
	"github.com/bnema/wayidle/internal/ui"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent tier transitions",
	Long:  `Show the tier transitions recorded by the daemon when history.enabled is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if !cfg.History.Enabled {
			fmt.Println(ui.FormatHint("history is disabled, set history.enabled = true to record transitions"))
		}

		db, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := history.NewRepository(db)

		if historyClear {
			removed, err := repo.Clear()
			if err != nil {
				return err
			}
			fmt.Println(ui.FormatSuccess(fmt.Sprintf("Removed %d transitions", removed)))
			return nil
		}

		rows, err := repo.Recent(historyLimit)
		if err != nil {
			return err
		}
		fmt.Println(ui.RenderHistory(rows))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of transitions to show")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all recorded transitions")
	rootCmd.AddCommand(historyCmd)
}
