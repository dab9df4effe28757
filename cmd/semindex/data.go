package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/semindex/internal/cli"
	"github.com/hyperjump/semindex/internal/models"
)

// NewInsertCmd inserts or overwrites records on a running server.
func NewInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert [--id N --data TEXT | --file items.json]",
		Short: "Insert or overwrite records",
		Long: `Insert or overwrite records. Either pass one record with --id and --data, or a JSON
array of {"data": "...", "id": N} objects with --file ("-" reads stdin).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			items, err := readInsertItems(cmd)
			if err != nil {
				return err
			}
			res, err := newClient(cmd).Insert(cmd.Context(), items)
			if err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			return cli.WriteMutation(cmd.OutOrStdout(), "insert", res, format)
		},
	}
	cmd.Flags().Int64("id", 0, "Record id")
	cmd.Flags().String("data", "", "Record text")
	cmd.Flags().StringP("file", "f", "", `JSON file with an array of records, "-" for stdin`)
	return cmd
}

func readInsertItems(cmd *cobra.Command) ([]models.InsertItem, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		if cmd.Flags().Changed("id") || cmd.Flags().Changed("data") {
			return nil, fmt.Errorf("--file cannot be combined with --id or --data")
		}
		var r io.Reader
		if file == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(file)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		var items []models.InsertItem
		if err := json.NewDecoder(r).Decode(&items); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		return items, nil
	}
	if !cmd.Flags().Changed("id") || !cmd.Flags().Changed("data") {
		return nil, fmt.Errorf("either --file or both --id and --data are required")
	}
	id, _ := cmd.Flags().GetInt64("id")
	data, _ := cmd.Flags().GetString("data")
	return []models.InsertItem{{ID: id, Data: data}}, nil
}

// NewDeleteCmd deletes records by id.
func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			res, err := newClient(cmd).Delete(cmd.Context(), ids)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			return cli.WriteMutation(cmd.OutOrStdout(), "delete", res, format)
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q: %w", part, err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// NewSearchCmd queries the nearest records.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the nearest records to a text query",
		Long:  `Search the nearest records. Multi-word queries work with or without quotes.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			q := models.SearchQuery{Query: strings.Join(args, " ")}
			q.TopK, _ = cmd.Flags().GetInt("top-k")
			if cmd.Flags().Changed("raw") {
				raw, _ := cmd.Flags().GetBool("raw")
				use := !raw
				q.UseQuery = &use
			}
			hits, err := newClient(cmd).Search(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), q.Query, hits, format)
		},
	}
	cmd.Flags().IntP("top-k", "k", models.DefaultTopK, "Maximum results")
	cmd.Flags().Bool("raw", false, "Encode the query without the retrieval instruction")
	return cmd
}

// NewCountCmd prints the number of records.
func NewCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the number of records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := newClient(cmd).Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

// NewClearCmd removes every record.
func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to clear the index without --yes")
			}
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if err := newClient(cmd).Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			return cli.WriteMutation(cmd.OutOrStdout(), "clear", models.MutationResult{}, format)
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm clearing the index")
	return cmd
}
