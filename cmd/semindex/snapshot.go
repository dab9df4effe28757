package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/cli"
	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/internal/vector"
	"github.com/hyperjump/semindex/pkg/utils"
)

// NewExportCmd downloads the server's snapshot.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the index snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := newClient(cmd).Export(cmd.Context())
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			file, _ := cmd.Flags().GetString("file")
			if file == "" || file == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(file, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Snapshot written to %s\n", file)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", `Destination file, "-" or empty for stdout`)
	return cmd
}

// NewImportCmd replaces the server's index with a snapshot file.
func NewImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot>",
		Short: "Replace the index with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := newClient(cmd).Import(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			return cli.WriteMutation(cmd.OutOrStdout(), "import", models.MutationResult{Count: n}, format)
		},
	}
}

// NewCheckpointCmd asks the server to persist its index.
func NewCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Persist the index now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			info, err := newClient(cmd).Checkpoint(cmd.Context())
			if err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
			return cli.WriteCheckpoint(cmd.OutOrStdout(), info, format)
		},
	}
}

// NewStatusCmd shows the server's index status.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index, persistence and job status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			report, err := newClient(cmd).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), report, format)
		},
	}
}

// NewInspectCmd decodes a snapshot file offline and summarizes it.
func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Validate and summarize a snapshot file without a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			debug, _ := cmd.Flags().GetBool("debug")
			logger, err := utils.NewCLILogger(debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			summary, err := inspectSnapshot(args[0], logger)
			if err != nil {
				return err
			}
			return cli.WriteSnapshotSummary(cmd.OutOrStdout(), summary, format)
		},
	}
}

func inspectSnapshot(path string, logger *zap.Logger) (cli.SnapshotSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.SnapshotSummary{}, err
	}
	logger.Debug("decoding snapshot", zap.String("path", path), zap.Int("bytes", len(data)))
	m, err := vector.DecodeSnapshot(data, vector.GraphOptions{})
	if err != nil {
		return cli.SnapshotSummary{}, fmt.Errorf("%s: %w", path, err)
	}
	// Flat snapshots re-encode byte for byte; graph exports may order nodes differently.
	if m.Variant() == vector.VariantFlat {
		if again, err := m.Snapshot(); err != nil || !bytes.Equal(again, data) {
			logger.Warn("snapshot does not re-encode identically", zap.String("path", path), zap.Error(err))
		}
	}
	return cli.SnapshotSummary{
		Path:      path,
		Size:      int64(len(data)),
		Variant:   string(m.Variant()),
		Metric:    string(m.Metric()),
		Dimension: m.Dimension(),
		Count:     m.Count(),
	}, nil
}
