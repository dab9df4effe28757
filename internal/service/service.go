// Package service ties the embedding encoder, the concurrent vector store and the
// snapshot store together behind the operations exposed to clients.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/embedding"
	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/internal/scheduler"
	"github.com/hyperjump/semindex/internal/storage"
	"github.com/hyperjump/semindex/internal/vector"
)

// ErrCheckpoint reports that a snapshot could not be persisted. The in-memory
// state is unaffected by the failure.
var ErrCheckpoint = errors.New("checkpoint failed")

// Policy decides when the index is persisted besides explicit checkpoints,
// exports, imports and shutdown.
type Policy string

const (
	// PolicyExplicit persists only at the explicit checkpoint points.
	PolicyExplicit Policy = "explicit"
	// PolicyWriteThrough persists after every successful mutation.
	PolicyWriteThrough Policy = "write_through"
	// PolicyInterval persists on a cron schedule when the index has changed.
	PolicyInterval Policy = "interval"
)

const checkpointJobName = "checkpoint"

type cacheReporter interface {
	CacheStats() (embedding.CacheStats, bool)
}

// Service is the single owner of the process-wide index.
type Service struct {
	store     *vector.Store
	encoder   embedding.Encoder
	snapshots storage.SnapshotStore
	logger    *zap.Logger
	policy    Policy
	schedule  string
	scheduler *scheduler.Scheduler
	startedAt time.Time

	// checkpointMu serializes checkpoints.
	checkpointMu sync.Mutex
	generation   atomic.Uint64
	saved        atomic.Uint64

	statusMu       sync.RWMutex
	lastCheckpoint *storage.SnapshotInfo

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPolicy sets the checkpoint policy. schedule is the cron spec used by PolicyInterval.
func WithPolicy(p Policy, schedule string) Option {
	return func(s *Service) {
		s.policy = p
		s.schedule = schedule
	}
}

// WithScheduler sets the scheduler that runs interval checkpoints.
func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(s *Service) { s.scheduler = sched }
}

// Open builds the service and restores the latest snapshot from snapshots. A missing
// snapshot starts an empty index; an unreadable or incompatible one is an error.
func Open(ctx context.Context, store *vector.Store, encoder embedding.Encoder, snapshots storage.SnapshotStore, opts ...Option) (*Service, error) {
	s := &Service{
		store:     store,
		encoder:   encoder,
		snapshots: snapshots,
		logger:    zap.NewNop(),
		policy:    PolicyExplicit,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if encoder.Dimensions() != store.Dimension() {
		return nil, fmt.Errorf("%w: encoder dimension %d, index dimension %d",
			vector.ErrInvalidArgument, encoder.Dimensions(), store.Dimension())
	}

	data, info, err := snapshots.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
		s.logger.Info("No snapshot found, starting with an empty index",
			zap.Int("dimension", store.Dimension()),
			zap.String("variant", string(store.Variant())))
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	default:
		if err := store.Restore(data); err != nil {
			return nil, fmt.Errorf("restore snapshot %s: %w", info.ID, err)
		}
		s.lastCheckpoint = &info
		s.logger.Info("Restored index from snapshot",
			zap.String("snapshot", info.ID),
			zap.Int("count", store.Count()))
	}

	switch s.policy {
	case PolicyExplicit, PolicyWriteThrough:
	case PolicyInterval:
		if s.scheduler == nil {
			return nil, fmt.Errorf("checkpoint policy %q requires a scheduler", s.policy)
		}
		if err := s.scheduler.Add(checkpointJobName, s.schedule, s.intervalCheckpoint); err != nil {
			return nil, fmt.Errorf("schedule checkpoints: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown checkpoint policy %q", s.policy)
	}
	return s, nil
}

// Insert encodes every item and upserts the batch. Encoding happens before the index
// is locked; an encoding failure leaves the index unchanged.
func (s *Service) Insert(ctx context.Context, items []models.InsertItem) (models.MutationResult, error) {
	if len(items) == 0 {
		return models.MutationResult{Count: s.store.Count(), NoOp: true}, nil
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Data
	}
	vecs, err := s.encoder.EncodeDocuments(ctx, texts)
	if err != nil {
		return models.MutationResult{Count: s.store.Count()}, err
	}

	records := make([]vector.Record, len(items))
	for i, it := range items {
		records[i] = vector.Record{ID: it.ID, Embedding: vecs[i]}
	}
	res, err := s.store.Upsert(records)
	if err != nil {
		return models.MutationResult{Count: res.Count}, err
	}
	s.logger.Debug("Inserted records", zap.Int("batch", len(items)), zap.Int("count", res.Count))
	return s.afterWrite(ctx, res)
}

// Delete removes the given ids. Absent ids are ignored; a batch that removes
// nothing leaves the index clean and is not checkpointed.
func (s *Service) Delete(ctx context.Context, ids []int64) (models.MutationResult, error) {
	res := s.store.Delete(ids)
	if res.NoOp {
		return models.MutationResult{Count: res.Count, NoOp: true}, nil
	}
	if res.Changed == 0 {
		s.logger.Debug("Delete matched no records", zap.Int("batch", len(ids)))
		return models.MutationResult{Count: res.Count}, nil
	}
	s.logger.Debug("Deleted records", zap.Int("batch", len(ids)), zap.Int("count", res.Count))
	return s.afterWrite(ctx, res)
}

// Search returns up to q.TopK records nearest to q.Query.
func (s *Service) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrInvalidArgument, err)
	}

	var vec []float32
	if q.InstructionEnabled() {
		v, err := s.encoder.EncodeQuery(ctx, q.Query)
		if err != nil {
			return nil, err
		}
		vec = v
	} else {
		vecs, err := s.encoder.EncodeDocuments(ctx, []string{q.Query})
		if err != nil {
			return nil, err
		}
		vec = vecs[0]
	}

	hits, err := s.store.Search(vec, q.TopK)
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchHit, len(hits))
	for i, h := range hits {
		out[i] = models.SearchHit{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

// Count returns the number of live records.
func (s *Service) Count() int {
	return s.store.Count()
}

// Export returns the current snapshot and persists it as a checkpoint.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	gen := s.generation.Load()
	data, err := s.store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.persist(ctx, gen, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Import replaces the whole index with the state encoded in data and checkpoints it.
// A corrupt or incompatible snapshot leaves the index unchanged.
func (s *Service) Import(ctx context.Context, data []byte) (models.MutationResult, error) {
	if err := s.store.Restore(data); err != nil {
		return models.MutationResult{Count: s.store.Count()}, err
	}
	s.generation.Add(1)
	count := s.store.Count()
	s.logger.Info("Imported snapshot", zap.Int("bytes", len(data)), zap.Int("count", count))
	if _, err := s.Checkpoint(ctx); err != nil {
		return models.MutationResult{Count: count}, err
	}
	return models.MutationResult{Count: count}, nil
}

// Clear removes every record.
func (s *Service) Clear(ctx context.Context) (models.MutationResult, error) {
	count := s.store.Reset()
	s.logger.Info("Cleared index")
	return s.afterWrite(ctx, vector.Result{Count: count})
}

// Checkpoint encodes the index and saves it to the snapshot store.
func (s *Service) Checkpoint(ctx context.Context) (storage.SnapshotInfo, error) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	gen := s.generation.Load()
	data, err := s.store.Snapshot()
	if err != nil {
		return storage.SnapshotInfo{}, fmt.Errorf("%w: encode snapshot: %w", ErrCheckpoint, err)
	}
	return s.persist(ctx, gen, data)
}

// persist saves data, which reflects at least generation gen. The caller holds checkpointMu.
func (s *Service) persist(ctx context.Context, gen uint64, data []byte) (storage.SnapshotInfo, error) {
	info, err := s.snapshots.Save(ctx, data)
	if err != nil {
		s.logger.Error("Checkpoint failed", zap.Error(err))
		return storage.SnapshotInfo{}, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	s.saved.Store(gen)

	s.statusMu.Lock()
	s.lastCheckpoint = &info
	s.statusMu.Unlock()

	s.logger.Info("Checkpoint saved",
		zap.String("snapshot", info.ID),
		zap.Int64("bytes", info.Size))
	return info, nil
}

// Dirty reports whether the index changed since the last successful checkpoint.
func (s *Service) Dirty() bool {
	return s.generation.Load() != s.saved.Load()
}

func (s *Service) afterWrite(ctx context.Context, res vector.Result) (models.MutationResult, error) {
	s.generation.Add(1)
	out := models.MutationResult{Count: res.Count, NoOp: res.NoOp}
	if s.policy != PolicyWriteThrough {
		return out, nil
	}
	if _, err := s.Checkpoint(ctx); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) intervalCheckpoint(ctx context.Context) error {
	if !s.Dirty() {
		return nil
	}
	_, err := s.Checkpoint(ctx)
	return err
}

// Status reports index shape, persistence state and disk usage.
func (s *Service) Status(ctx context.Context) (models.Status, error) {
	st := models.Status{
		Count:            s.store.Count(),
		Dimension:        s.store.Dimension(),
		Variant:          string(s.store.Variant()),
		Metric:           string(s.store.Metric()),
		CheckpointPolicy: string(s.policy),
		StorageBackend:   backendName(s.snapshots),
		Dirty:            s.Dirty(),
		StartedAt:        s.startedAt,
	}

	s.statusMu.RLock()
	if s.lastCheckpoint != nil {
		st.LastCheckpoint = &models.CheckpointInfo{
			ID:        s.lastCheckpoint.ID,
			Size:      s.lastCheckpoint.Size,
			CreatedAt: s.lastCheckpoint.CreatedAt,
		}
	}
	s.statusMu.RUnlock()

	if cr, ok := s.encoder.(cacheReporter); ok {
		if cs, ok := cr.CacheStats(); ok {
			st.EmbeddingCache = &models.CacheStatus{Size: cs.Size, Hits: cs.Hits, Misses: cs.Misses}
		}
	}

	usage, err := storage.StoreUsageBytes(s.snapshots)
	if err != nil {
		return st, fmt.Errorf("disk usage: %w", err)
	}
	st.DiskUsageBytes = usage

	list, err := s.snapshots.List(ctx)
	if err != nil {
		return st, fmt.Errorf("list snapshots: %w", err)
	}
	st.Snapshots = len(list)
	return st, nil
}

// Close writes a final checkpoint when the index has unsaved changes, then releases
// the encoder and the snapshot store. Later calls return the first result.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.Dirty() {
			if _, err := s.Checkpoint(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.encoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close encoder: %w", err))
		}
		if err := s.snapshots.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close snapshot store: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func backendName(st storage.SnapshotStore) string {
	switch st.(type) {
	case *storage.FileStore:
		return storage.BackendFile
	case *storage.SQLiteStore:
		return storage.BackendSQLite
	}
	return "custom"
}
