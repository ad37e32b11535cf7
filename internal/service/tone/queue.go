package tone

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/zhouzirui/z-tone/backend/internal/metrics"
)

// ErrQueueFull is reported when a job is dropped because its worker lane is full.
var ErrQueueFull = errors.New("persistence queue is full")

// ErrQueueClosed is reported for jobs submitted after Close.
var ErrQueueClosed = errors.New("persistence queue is closed")

// Job is one unit of background persistence work.
type Job struct {
	// Name labels the job in logs and metrics.
	Name string
	// Key routes the job; jobs sharing a key run in submission order on one worker.
	Key string
	Run func(ctx context.Context) error
}

type queued struct {
	job Job
	ctx context.Context
}

// QueueConfig sizes the background queue.
type QueueConfig struct {
	Workers    int
	Capacity   int
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Queue 是带界的后台持久化队列：每个 worker 一条通道，按 Key 的哈希分配。
type Queue struct {
	lanes      []chan queued
	jobTimeout time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts the workers. Capacity is the total buffer shared across lanes.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Capacity < cfg.Workers {
		cfg.Capacity = cfg.Workers * 64
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	q := &Queue{
		lanes:      make([]chan queued, cfg.Workers),
		jobTimeout: cfg.JobTimeout,
		logger:     cfg.Logger,
	}
	perLane := cfg.Capacity / cfg.Workers
	for i := range q.lanes {
		q.lanes[i] = make(chan queued, perLane)
		q.wg.Add(1)
		go q.work(q.lanes[i])
	}
	return q
}

// Enqueue submits job without blocking. The job inherits ctx values but not its
// cancellation. A full lane drops the job.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.QueueDropped.Inc()
		q.logger.Warn("persistence job dropped, queue closed", "job", job.Name, "key", job.Key)
		return ErrQueueClosed
	}

	item := queued{job: job, ctx: context.WithoutCancel(ctx)}
	select {
	case q.lanes[q.lane(job.Key)] <- item:
		metrics.QueueDepth.Inc()
		return nil
	default:
		metrics.QueueDropped.Inc()
		q.logger.Warn("persistence job dropped, queue full", "job", job.Name, "key", job.Key)
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits until every queued job has run.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) lane(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.lanes)))
}

func (q *Queue) work(lane <-chan queued) {
	defer q.wg.Done()
	for item := range lane {
		metrics.QueueDepth.Dec()
		q.run(item)
	}
}

func (q *Queue) run(item queued) {
	ctx, cancel := context.WithTimeout(item.ctx, q.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.QueueFailed.WithLabelValues(item.job.Name).Inc()
			q.logger.Error("persistence job panicked", "job", item.job.Name, "panic", r)
		}
	}()

	if err := item.job.Run(ctx); err != nil {
		metrics.QueueFailed.WithLabelValues(item.job.Name).Inc()
		q.logger.Error("persistence job failed", "job", item.job.Name, "key", item.job.Key, "error", err)
	}
}
