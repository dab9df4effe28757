package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/semindex/internal/cli"
	"github.com/hyperjump/semindex/internal/config"
	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/internal/storage"
)

// NewSnapshotsCmd reads the configured snapshot store directly, without a server.
func NewSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List or extract stored snapshots",
	}
	cmd.AddCommand(newSnapshotsListCmd(), newSnapshotsGetCmd())
	return cmd
}

func openSnapshotStore(cmd *cobra.Command) (storage.SnapshotStore, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, _, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	return openStorage(cfg.Storage)
}

func openStorage(cfg config.StorageConfig) (storage.SnapshotStore, error) {
	return storage.Open(storage.Options{
		Backend:      cfg.Backend,
		SnapshotPath: cfg.SnapshotPath,
		DatabasePath: cfg.DatabasePath,
		History:      cfg.History,
	})
}

func newSnapshotsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retained snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			store, err := openSnapshotStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list snapshots: %w", err)
			}
			out := make([]models.CheckpointInfo, 0, len(infos))
			for _, info := range infos {
				out = append(out, models.CheckpointInfo{ID: info.ID, Size: info.Size, CreatedAt: info.CreatedAt})
			}
			return cli.WriteSnapshotList(cmd.OutOrStdout(), out, format)
		},
	}
}

func newSnapshotsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Write a stored snapshot to a file; the latest when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSnapshotStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var data []byte
			var info storage.SnapshotInfo
			if len(args) == 0 {
				data, info, err = store.Load(cmd.Context())
			} else {
				data, info, err = store.Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			file, _ := cmd.Flags().GetString("file")
			if file == "" || file == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(file, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Snapshot %s written to %s\n", info.ID, file)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", `Destination file, "-" or empty for stdout`)
	return cmd
}
