package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/wayidle/internal/config"
	"github.com/bnema/wayidle/internal/daemon"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the idle daemon",
	Long: `Run the idle daemon in the foreground. It listens on the control socket,
watches the configured activity sources and runs the tier hooks. SIGINT or
SIGTERM shut it down.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.Get()
		if socketFlag != "" {
			cfg.IPC.SocketPath = socketFlag
		}

		d, err := daemon.New(&cfg, daemon.Deps{})
		if err != nil {
			return err
		}
		defer d.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return d.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
