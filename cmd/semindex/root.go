package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/semindex/internal/cli"
	"github.com/hyperjump/semindex/internal/config"
	"github.com/hyperjump/semindex/pkg/client"
)

const defaultServerURL = "http://localhost:8000"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "semindex",
		Short:         "Semantic vector index over short text records",
		Long:          `semindex serves k-nearest-neighbour search over caller-managed text records, keyed by int64 ids.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewServerCmd(),
		NewInsertCmd(),
		NewDeleteCmd(),
		NewSearchCmd(),
		NewCountCmd(),
		NewExportCmd(),
		NewImportCmd(),
		NewClearCmd(),
		NewCheckpointCmd(),
		NewStatusCmd(),
		NewInspectCmd(),
		NewSnapshotsCmd(),
		NewConfigCmd(),
		NewVersionCmd(version),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", config.DefaultConfigPath, "Config file path")
	cmd.PersistentFlags().String("server", serverURLFromEnv(), "Server URL for client commands")
	cmd.PersistentFlags().StringP("output", "o", "text", "Output format: text, json or compact")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

func serverURLFromEnv() string {
	if v := os.Getenv(config.EnvPrefix + "_URL"); v != "" {
		return v
	}
	return defaultServerURL
}

func outputFormat(cmd *cobra.Command) (cli.OutputFormat, error) {
	s, _ := cmd.Flags().GetString("output")
	return cli.ParseOutputFormat(s)
}

func newClient(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("server")
	return client.New(url)
}

// NewVersionCmd prints the build version.
func NewVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "semindex version %s\n", version)
		},
	}
}
