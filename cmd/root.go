// Package cmd implements the linecord command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/linecord/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var cfgFile string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linecord",
		Short: "Relay messages between LINE groups and Discord channels",
		Long: "linecord mirrors messages, media and stickers between a LINE group and the\n" +
			"Discord channel it is bound to. Run without a subcommand to start the relay.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $"+config.EnvConfigPath+" or ./"+config.DefaultPath+")")

	root.AddCommand(serveCmd())
	root.AddCommand(bindingsCmd())
	root.AddCommand(codesCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(onboardCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := startupHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	return config.ResolvePath(cfgFile)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("linecord", Version)
		},
	}
}
