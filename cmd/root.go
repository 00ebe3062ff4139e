// Package cmd implements the orcd command-line interface: the Supervisor,
// the MCP broker, and the context registry, wired together per spec.md §6.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "orcd",
	Short: "orcd supervises a fleet of Claude agents hosted in a tmux session",
	Long: "orcd launches, monitors, and mediates JSON-RPC messaging between\n" +
		"long-running Claude agent processes, each hosted in its own tmux pane.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to orchestrator config (default: ~/.claude-orc/config.json)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(contextsCmd())
	rootCmd.AddCommand(versionCmd())
}

// version is set at build time via -ldflags "-X github.com/nextlevelbuilder/orcd/cmd.version=...".
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the orcd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("orcd", version)
			return nil
		},
	}
}

func resolveConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude-orc", "config.json")
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
