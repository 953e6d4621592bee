package cmd

import (
	"fmt"

	"github.com/bnema/wayidle/internal/ipc"
	"github.com/bnema/wayidle/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the idle state of the running daemon",
	Long:  `Show how long the session has been idle and the state of every tier.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := socketPath()
		if !ipc.IsRunning(path) {
			fmt.Println(ui.FormatError("wayidle daemon is not running"))
			return nil
		}

		client, err := ipc.NewClient(path)
		if err != nil {
			return fmt.Errorf("failed to create IPC client: %w", err)
		}
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return fmt.Errorf("failed to get daemon status: %w", err)
		}

		fmt.Println(ui.RenderStatus(status))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
