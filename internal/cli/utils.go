// Package cli formats command output for the semindex CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact prints one line per item, suitable for shell pipelines.
	OutputCompact OutputFormat = "compact"
)

// ParseOutputFormat validates a format name. The empty string selects text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "":
		return OutputText, nil
	case OutputText, OutputJSON, OutputCompact:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, json or compact", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes ranked hits for query to w.
func WriteSearchResults(w io.Writer, query string, hits []models.SearchHit, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if hits == nil {
			hits = []models.SearchHit{}
		}
		return writeJSON(w, hits)
	case OutputCompact:
		for _, h := range hits {
			fmt.Fprintf(w, "%d\t%.4f\n", h.ID, h.Score)
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(hits), utils.Truncate(query, 60))
		for i, h := range hits {
			fmt.Fprintf(w, "%3d. id %-20d score %8.4f\n", i+1, h.ID, h.Score)
		}
		return nil
	}
}

// WriteMutation reports the outcome of an insert, delete, clear or import.
func WriteMutation(w io.Writer, action string, res models.MutationResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, res)
	case OutputCompact:
		fmt.Fprintln(w, res.Count)
		return nil
	default:
		if res.NoOp {
			fmt.Fprintf(w, "Nothing to %s; index holds %s records\n", action, humanize.Comma(int64(res.Count)))
			return nil
		}
		fmt.Fprintf(w, "%s done; index holds %s records\n", capitalize(action), humanize.Comma(int64(res.Count)))
		return nil
	}
}

// WriteCheckpoint reports a persisted snapshot.
func WriteCheckpoint(w io.Writer, info models.CheckpointInfo, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, info)
	case OutputCompact:
		fmt.Fprintln(w, info.ID)
		return nil
	default:
		fmt.Fprintf(w, "Checkpoint %s saved (%s)\n", info.ID, humanize.IBytes(uint64(info.Size)))
		return nil
	}
}

// WriteStatus writes the index status report.
func WriteStatus(w io.Writer, report models.StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	st := report.Index
	if format == OutputCompact {
		fmt.Fprintf(w, "count=%d dimension=%d variant=%s dirty=%t disk=%d\n",
			st.Count, st.Dimension, st.Variant, st.Dirty, st.DiskUsageBytes)
		return nil
	}

	fmt.Fprintf(w, "records:            %s\n", humanize.Comma(int64(st.Count)))
	fmt.Fprintf(w, "dimension:          %d\n", st.Dimension)
	fmt.Fprintf(w, "variant:            %s\n", st.Variant)
	fmt.Fprintf(w, "metric:             %s\n", st.Metric)
	fmt.Fprintf(w, "checkpoint_policy:  %s\n", st.CheckpointPolicy)
	fmt.Fprintf(w, "storage_backend:    %s\n", st.StorageBackend)
	fmt.Fprintf(w, "disk_usage:         %s\n", humanize.IBytes(uint64(st.DiskUsageBytes)))
	fmt.Fprintf(w, "snapshots:          %d\n", st.Snapshots)
	fmt.Fprintf(w, "unsaved_changes:    %t\n", st.Dirty)
	if c := st.EmbeddingCache; c != nil {
		fmt.Fprintf(w, "embedding_cache:    %s entries, %s hits, %s misses\n",
			humanize.Comma(int64(c.Size)), humanize.Comma(int64(c.Hits)), humanize.Comma(int64(c.Misses)))
	}
	if st.LastCheckpoint != nil {
		fmt.Fprintf(w, "last_checkpoint:    %s (%s)\n", st.LastCheckpoint.ID, humanize.Time(st.LastCheckpoint.CreatedAt))
	}
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(w, "started:            %s\n", humanize.Time(st.StartedAt))
	}
	if len(report.Jobs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# jobs")
		for _, j := range report.Jobs {
			line := fmt.Sprintf("%-12s %-14s runs=%d", j.Name, j.Schedule, j.Runs)
			if !j.NextRun.IsZero() {
				line += " next=" + j.NextRun.Format(time.RFC3339)
			}
			if j.LastError != "" {
				line += " last_error=" + utils.Truncate(j.LastError, 80)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

// WriteSnapshotList writes the snapshots retained by a store, newest first.
func WriteSnapshotList(w io.Writer, snapshots []models.CheckpointInfo, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if snapshots == nil {
			snapshots = []models.CheckpointInfo{}
		}
		return writeJSON(w, snapshots)
	case OutputCompact:
		for _, s := range snapshots {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.ID, s.Size, s.CreatedAt.Format(time.RFC3339))
		}
		return nil
	default:
		if len(snapshots) == 0 {
			fmt.Fprintln(w, "No snapshots stored")
			return nil
		}
		for _, s := range snapshots {
			fmt.Fprintf(w, "%s  %10s  %s\n", s.ID, humanize.IBytes(uint64(s.Size)), humanize.Time(s.CreatedAt))
		}
		return nil
	}
}

// SnapshotSummary describes a snapshot file decoded offline.
type SnapshotSummary struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Variant   string `json:"variant"`
	Metric    string `json:"metric"`
	Dimension int    `json:"dimension"`
	Count     int    `json:"count"`
}

// WriteSnapshotSummary writes the result of inspecting a snapshot.
func WriteSnapshotSummary(w io.Writer, s SnapshotSummary, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, s)
	case OutputCompact:
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Path, s.Variant, s.Dimension, s.Count)
		return nil
	default:
		fmt.Fprintf(w, "path:       %s\n", s.Path)
		fmt.Fprintf(w, "size:       %s\n", humanize.IBytes(uint64(s.Size)))
		fmt.Fprintf(w, "variant:    %s\n", s.Variant)
		fmt.Fprintf(w, "metric:     %s\n", s.Metric)
		fmt.Fprintf(w, "dimension:  %d\n", s.Dimension)
		fmt.Fprintf(w, "records:    %s\n", humanize.Comma(int64(s.Count)))
		return nil
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
