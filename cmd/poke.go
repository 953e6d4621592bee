package cmd

import (
	"fmt"

	"github.com/bnema/wayidle/internal/ipc"
	"github.com/bnema/wayidle/internal/ui"
	"github.com/spf13/cobra"
)

var pokeCmd = &cobra.Command{
	Use:   "poke",
	Short: "Report user activity to the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient(socketPath())
		if err != nil {
			return err
		}
		defer client.Close()

		status, err := client.Poke()
		if err != nil {
			return fmt.Errorf("failed to poke: %w", err)
		}

		fmt.Println(ui.FormatSuccess("Activity reported"))
		if status.HasNextTier {
			fmt.Println(ui.FormatHint("next tier in %s", ui.FormatDuration(status.NextTier-status.IdleFor)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pokeCmd)
}
