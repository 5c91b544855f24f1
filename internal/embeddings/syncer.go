package embeddings

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskagent/internal/models"
)

type SyncerConfig struct {
	Workers    int
	QueueSize  int
	Retries    int
	RetryDelay time.Duration
	JobTimeout time.Duration
}

func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		Workers:    2,
		QueueSize:  256,
		Retries:    3,
		RetryDelay: time.Second,
		JobTimeout: 30 * time.Second,
	}
}

type jobKind int

const (
	jobUpsert jobKind = iota
	jobDelete
)

type job struct {
	kind   jobKind
	task   models.Task
	taskID string
}

// Syncer mirrors task mutations into the index from a pool of background
// workers. Jobs for one task id always land on the same worker, so they are
// applied in the order they were enqueued. Enqueueing never blocks; failures
// are logged and dropped.
type Syncer struct {
	cfg      SyncerConfig
	embedder Embedder
	index    Index
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
	queues  []chan job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSyncer(cfg SyncerConfig, embedder Embedder, index Index, logger *zap.Logger) *Syncer {
	def := DefaultSyncerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{cfg: cfg, embedder: embedder, index: index, logger: logger}
}

// Start launches the workers on a context detached from ctx. Only Stop ends
// them.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("syncer is already running")
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queues = make([]chan job, s.cfg.Workers)
	s.running = true

	for i := range s.queues {
		jobs := make(chan job, s.cfg.QueueSize)
		s.queues[i] = jobs
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.run(workerCtx, id, jobs)
		}(i + 1)
	}
	s.logger.Info("[index][syncer] started", zap.Int("workers", s.cfg.Workers))
	return nil
}

// Stop closes the queue and waits for queued jobs to drain. When ctx ends
// first, in-flight jobs are cancelled and Stop returns ctx.Err().
func (s *Syncer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("[index][syncer] stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.logger.Warn("[index][syncer] stop timed out, pending jobs dropped")
		return ctx.Err()
	}
}

func (s *Syncer) EnqueueUpsert(task models.Task) {
	s.enqueue(job{kind: jobUpsert, task: task, taskID: task.ID})
}

func (s *Syncer) EnqueueDelete(taskID string) {
	s.enqueue(job{kind: jobDelete, taskID: taskID})
}

func (s *Syncer) enqueue(j job) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		s.logger.Warn("[index][syncer] not running, job dropped", zap.String("task_id", j.taskID))
		return
	}
	select {
	case s.queueFor(j.taskID) <- j:
	default:
		s.logger.Warn("[index][syncer] queue full, job dropped", zap.String("task_id", j.taskID))
	}
}

func (s *Syncer) queueFor(taskID string) chan job {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return s.queues[h.Sum32()%uint32(len(s.queues))]
}

func (s *Syncer) run(ctx context.Context, id int, jobs <-chan job) {
	for j := range jobs {
		if ctx.Err() != nil {
			return
		}
		jctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		var err error
		switch j.kind {
		case jobUpsert:
			err = s.upsert(jctx, j.task)
		case jobDelete:
			err = s.retry(jctx, func(ctx context.Context) error { return s.index.Delete(ctx, j.taskID) })
		}
		cancel()
		if err != nil {
			s.logger.Error("[index][syncer][err]", zap.Int("worker", id), zap.String("task_id", j.taskID), zap.Error(err))
		}
	}
}

func (s *Syncer) upsert(ctx context.Context, task models.Task) error {
	var vec []float32
	err := s.retry(ctx, func(ctx context.Context) error {
		v, err := s.embedder.Embed(ctx, TaskText(task))
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	return s.retry(ctx, func(ctx context.Context) error {
		return s.index.Upsert(ctx, task.ID, vec, MetadataFor(task))
	})
}

func (s *Syncer) retry(ctx context.Context, fn func(context.Context) error) error {
	return WithRetry(ctx, s.cfg.Retries, s.cfg.RetryDelay, fn, func(err error, left int) {
		s.logger.Warn("[index][syncer] retrying", zap.Int("left", left), zap.Error(err))
	})
}

// Reindex embeds and upserts every task synchronously. Per-task failures are
// logged; the count of indexed tasks is returned.
func (s *Syncer) Reindex(ctx context.Context, tasks []models.Task) (int, error) {
	n := 0
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := s.upsert(ctx, t); err != nil {
			s.logger.Error("[index][reindex][err]", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}
