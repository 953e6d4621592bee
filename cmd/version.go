package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version info set by main package
	Version = "0.1.0-dev"
	Commit  string
	Date    string
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wayidle %s\n", Version)
		if Commit != "" {
			fmt.Printf("commit: %s\n", Commit)
		}
		if Date != "" {
			fmt.Printf("built: %s\n", Date)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
