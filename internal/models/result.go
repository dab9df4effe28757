package models

import (
	"time"

	"github.com/hyperjump/semindex/internal/scheduler"
)

// Envelope wraps every JSON response. Status mirrors an HTTP status code but is carried
// in the body; a no-op batch answers HTTP 200 with Status 400.
type Envelope struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Data    any    `json:"data"`
	NoOp    bool   `json:"noop,omitempty"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// CheckpointInfo describes a persisted snapshot.
type CheckpointInfo struct {
	ID        string    `json:"id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Status describes the running index.
type Status struct {
	Count            int             `json:"count"`
	Dimension        int             `json:"dimension"`
	Variant          string          `json:"variant"`
	Metric           string          `json:"metric"`
	CheckpointPolicy string          `json:"checkpoint_policy"`
	StorageBackend   string          `json:"storage_backend"`
	DiskUsageBytes   int64           `json:"disk_usage_bytes"`
	Dirty            bool            `json:"dirty"`
	LastCheckpoint   *CheckpointInfo `json:"last_checkpoint,omitempty"`
	Snapshots        int             `json:"snapshots"`
	StartedAt        time.Time       `json:"started_at"`
	EmbeddingCache   *CacheStatus    `json:"embedding_cache,omitempty"`
}

// CacheStatus reports embedding cache usage.
type CacheStatus struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// StatusReport is the data of a status response: the index plus its background jobs.
type StatusReport struct {
	Index Status                `json:"index"`
	Jobs  []scheduler.JobStatus `json:"jobs,omitempty"`
}
