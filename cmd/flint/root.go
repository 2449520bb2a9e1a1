package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/escalona/flint/internal/config"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "flint",
	Short: "Flint — a self-hosted gateway bridging messaging channels to coding-agent subprocesses",
	Long:  "Flint bridges external messaging channels to long-lived coding-agent child processes that speak the Agent Protocol over stdio, resolving inbound messages to stable thread identities and maintaining one agent runtime per thread.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default: flint.json5 or $FLINT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP surface (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flint %s\n", Version)
		},
	}
}

func configCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "config",
		Short: "Settings-file commands",
	}
	parent.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the settings file without starting the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			fmt.Printf("config OK: provider=%s routingMode=%s port=%d storePath=%s\n",
				settings.Provider, settings.RoutingMode, settings.Port, settings.StorePath)
			return nil
		},
	})
	return parent
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("FLINT_CONFIG"); v != "" {
		return v
	}
	return "flint.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
