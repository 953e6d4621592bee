package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bnema/wayidle/internal/config"
	"github.com/bnema/wayidle/internal/input"
	"github.com/bnema/wayidle/internal/ui"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showYAML bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage wayidle configuration",
	Long:  `Show, create and locate the wayidle configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		if showYAML {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		}

		fmt.Println(ui.HeaderStyle.Render("Current Configuration"))
		fmt.Printf("Config file: %s\n\n", config.GetConfigPath())

		socket := cfg.IPC.SocketPath
		if socket == "" {
			socket = "(default)"
		}
		fmt.Println(ui.BoldStyle.Render("[ipc]"))
		fmt.Printf("  Socket: %s\n", socket)

		fmt.Println(ui.BoldStyle.Render("[input]"))
		fmt.Printf("  Enabled: %v\n", cfg.Input.Enabled)
		if len(cfg.Input.Devices) > 0 {
			fmt.Printf("  Devices: %s\n", strings.Join(cfg.Input.Devices, ", "))
		} else {
			fmt.Println("  Devices: (auto-detect)")
		}
		fmt.Printf("  Debounce: %s\n", cfg.Input.Debounce)

		fmt.Println(ui.BoldStyle.Render("[dbus]"))
		fmt.Printf("  Enabled: %v\n", cfg.DBus.Enabled)
		fmt.Printf("  Lock tier: %s\n", cfg.DBus.LockTier)

		fmt.Println(ui.BoldStyle.Render("[mqtt]"))
		fmt.Printf("  Enabled: %v\n", cfg.MQTT.Enabled)
		if cfg.MQTT.Enabled {
			fmt.Printf("  Broker: %s\n", cfg.MQTT.Broker)
			fmt.Printf("  Topic: %s\n", cfg.MQTT.Topic)
		}

		fmt.Println(ui.BoldStyle.Render("[history]"))
		fmt.Printf("  Enabled: %v\n", cfg.History.Enabled)

		fmt.Println()
		fmt.Println(ui.BoldStyle.Render("[[tiers]]"))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  Name\tTimeout\tOn idle\tOn active")
		for _, tier := range cfg.Tiers {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", tier.Name, tier.Timeout, orDash(tier.OnIdle), orDash(tier.OnActive))
		}
		return w.Flush()
	},
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the config file path",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.GetConfigPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create a config file interactively",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetConfigPath()
		if _, err := os.Stat(path); err == nil {
			var overwrite bool
			confirm := huh.NewConfirm().
				Title(fmt.Sprintf("%s already exists. Overwrite it?", path)).
				Value(&overwrite)
			if err := confirm.Run(); err != nil {
				return err
			}
			if !overwrite {
				return nil
			}
		}

		cfg := config.DefaultConfig
		cfg.Tiers = append([]config.TierConfig(nil), config.DefaultConfig.Tiers...)

		timeouts := make([]string, len(cfg.Tiers))
		fields := make([]huh.Field, 0, len(cfg.Tiers)+2)
		for i, tier := range cfg.Tiers {
			timeouts[i] = tier.Timeout.String()
			fields = append(fields, huh.NewInput().
				Title(fmt.Sprintf("Timeout for tier %q", tier.Name)).
				Value(&timeouts[i]).
				Validate(validateTimeout))
		}
		fields = append(fields,
			huh.NewConfirm().
				Title("Watch input devices for activity?").
				Description("Needs read access to /dev/input (the input group).").
				Value(&cfg.Input.Enabled),
			huh.NewConfirm().
				Title("Serve org.freedesktop.ScreenSaver on the session bus?").
				Value(&cfg.DBus.Enabled),
		)

		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return fmt.Errorf("config init cancelled: %w", err)
		}

		for i := range cfg.Tiers {
			// Already validated by the form
			cfg.Tiers[i].Timeout, _ = time.ParseDuration(timeouts[i])
		}
		if cfg.Input.Enabled {
			devices, err := input.SelectDevices()
			if err != nil {
				return err
			}
			cfg.Input.Devices = devices
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		config.Set(&cfg)
		if err := config.Save(); err != nil {
			return err
		}
		fmt.Println(ui.FormatSuccess("Configuration saved to " + path))
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&showYAML, "yaml", false, "Print the configuration as YAML")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func validateTimeout(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration (try 5m or 90s)")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
