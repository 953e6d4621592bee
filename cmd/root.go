package cmd

import (
	"fmt"
	"os"

	"github.com/bnema/wayidle/internal/config"
	"github.com/bnema/wayidle/internal/logger"
	"github.com/spf13/cobra"
)

// skipConfigAnnotation marks commands that must work without a valid config
const skipConfigAnnotation = "wayidle/skip-config"

var (
	configFile string
	socketFlag string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "wayidle",
		Short: "wayidle - idle tracking for Wayland sessions",
		Long: `wayidle tracks user activity and runs actions when the session has been idle
for each of a set of timeouts (tiers), such as dimming the screen, locking it
and suspending. Activity comes from input devices, applications using the
org.freedesktop.ScreenSaver API and "wayidle poke".`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/wayidle/wayidle.toml)")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Control socket path (overrides ipc.socket_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		config.SetConfigPath(configFile)
	}
	if cmd.Annotations[skipConfigAnnotation] != "true" {
		if err := config.Init(); err != nil {
			return err
		}
	}

	cfg := config.Get()
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
	}
	switch {
	case logLevel != "":
		logger.SetLevel(logLevel)
	case cfg.Logging.LogLevel != "":
		logger.SetLevel(cfg.Logging.LogLevel)
	}
	return nil
}

// socketPath returns the control socket path from the flag or the config
func socketPath() string {
	if socketFlag != "" {
		return socketFlag
	}
	return config.Get().IPC.SocketPath
}
