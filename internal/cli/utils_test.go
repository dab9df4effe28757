package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/internal/scheduler"
)

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "JSON": OutputJSON, "compact": OutputCompact} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteSearchResults(t *testing.T) {
	hits := []models.SearchHit{{ID: 1023, Score: 36.5}, {ID: 1022, Score: 16.9}}

	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, "你好", hits, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []models.SearchHit
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(decoded) != 2 || decoded[0].ID != 1023 {
		t.Errorf("decoded = %+v", decoded)
	}

	buf.Reset()
	if err := WriteSearchResults(&buf, "你好", nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty hits JSON = %q", buf.String())
	}

	buf.Reset()
	_ = WriteSearchResults(&buf, "你好", hits, OutputCompact)
	if buf.String() != "1023\t36.5000\n1022\t16.9000\n" {
		t.Errorf("compact = %q", buf.String())
	}

	buf.Reset()
	_ = WriteSearchResults(&buf, "你好", hits, OutputText)
	out := buf.String()
	if !strings.Contains(out, "Found 2 results") || !strings.Contains(out, "1023") {
		t.Errorf("text = %q", out)
	}
}

func TestWriteMutation(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteMutation(&buf, "insert", models.MutationResult{Count: 1500}, OutputText)
	if buf.String() != "Insert done; index holds 1,500 records\n" {
		t.Errorf("text = %q", buf.String())
	}
	buf.Reset()
	_ = WriteMutation(&buf, "delete", models.MutationResult{Count: 2, NoOp: true}, OutputText)
	if !strings.HasPrefix(buf.String(), "Nothing to delete") {
		t.Errorf("noop = %q", buf.String())
	}
	buf.Reset()
	_ = WriteMutation(&buf, "delete", models.MutationResult{Count: 2}, OutputCompact)
	if buf.String() != "2\n" {
		t.Errorf("compact = %q", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	report := models.StatusReport{
		Index: models.Status{
			Count:          3,
			Dimension:      768,
			Variant:        "flat",
			Metric:         "inner_product",
			DiskUsageBytes: 2048,
			LastCheckpoint: &models.CheckpointInfo{ID: "snap-1", Size: 2048, CreatedAt: time.Now()},
			StartedAt:      time.Now().Add(-time.Hour),
			EmbeddingCache: &models.CacheStatus{Size: 10, Hits: 1500, Misses: 10},
		},
		Jobs: []scheduler.JobStatus{{Name: "checkpoint", Schedule: "@every 5m", Runs: 2}},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"records:            3", "disk_usage:         2.0 KiB", "snap-1", "checkpoint", "runs=2", "1,500 hits"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = WriteStatus(&buf, report, OutputCompact)
	if buf.String() != "count=3 dimension=768 variant=flat dirty=false disk=2048\n" {
		t.Errorf("compact = %q", buf.String())
	}
}

func TestWriteSnapshotSummary(t *testing.T) {
	s := SnapshotSummary{Path: "/tmp/x.snap", Size: 1 << 20, Variant: "hnsw", Metric: "inner_product", Dimension: 768, Count: 12000}
	var buf bytes.Buffer
	_ = WriteSnapshotSummary(&buf, s, OutputText)
	if !strings.Contains(buf.String(), "1.0 MiB") || !strings.Contains(buf.String(), "12,000") {
		t.Errorf("text = %q", buf.String())
	}
}

func TestWriteSnapshotList(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteSnapshotList(&buf, nil, OutputText)
	if buf.String() != "No snapshots stored\n" {
		t.Errorf("empty text = %q", buf.String())
	}
	buf.Reset()
	_ = WriteSnapshotList(&buf, nil, OutputJSON)
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty json = %q", buf.String())
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	list := []models.CheckpointInfo{{ID: "b", Size: 4096, CreatedAt: at}, {ID: "a", Size: 10, CreatedAt: at}}
	buf.Reset()
	_ = WriteSnapshotList(&buf, list, OutputCompact)
	if buf.String() != "b\t4096\t2024-05-01T12:00:00Z\na\t10\t2024-05-01T12:00:00Z\n" {
		t.Errorf("compact = %q", buf.String())
	}
	buf.Reset()
	_ = WriteSnapshotList(&buf, list, OutputText)
	if !strings.Contains(buf.String(), "4.0 KiB") {
		t.Errorf("text = %q", buf.String())
	}
}
