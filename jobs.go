package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// generateFunc is the slice of Generator the queue depends on.
type generateFunc func(ctx context.Context, req Request) (*Whitepaper, error)

type generationJob struct {
	ID      string
	Request Request
	Created time.Time
}

// jobQueue runs whitepaper generation in the background. Each job's state
// lives in the store, so any instance can answer status requests.
type jobQueue struct {
	store    Store
	generate generateFunc
	validate func(*Request) error
	log      *Logger
	timeout  time.Duration

	pending chan generationJob
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func newJobQueue(store Store, generate generateFunc, workers, size int, log *Logger) *jobQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = nopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &jobQueue{
		store:    store,
		generate: generate,
		log:      log.With("component", "jobs"),
		timeout:  10 * time.Minute,
		pending:  make(chan generationJob, size),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (q *jobQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Info("job queue started", "workers", q.workers, "capacity", cap(q.pending))
}

func (q *jobQueue) worker(id int) {
	defer q.wg.Done()
	for job := range q.pending {
		q.processJob(id, job)
	}
}

// Submit records a pending whitepaper and enqueues it. A full queue marks
// the record failed and returns ErrQueueFull.
func (q *jobQueue) Submit(ctx context.Context, req Request) (string, error) {
	if err := req.normalize(); err != nil {
		return "", err
	}
	if q.validate != nil {
		if err := q.validate(&req); err != nil {
			return "", err
		}
	}
	job := generationJob{ID: uuid.New().String(), Request: req, Created: time.Now()}
	if err := q.store.Create(ctx, job.ID, req); err != nil {
		return "", err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		_ = q.store.UpdateStatus(ctx, job.ID, StatusFailed, "server is shutting down")
		return "", fmt.Errorf("job queue stopped: %w", ErrQueueFull)
	}
	select {
	case q.pending <- job:
		q.log.Info("job submitted", "job_id", job.ID, "queued", len(q.pending))
		return job.ID, nil
	default:
		_ = q.store.UpdateStatus(ctx, job.ID, StatusFailed, ErrQueueFull.Error())
		return "", ErrQueueFull
	}
}

func (q *jobQueue) processJob(worker int, job generationJob) {
	log := q.log.With("job_id", job.ID, "worker", worker)
	if q.ctx.Err() != nil {
		q.markFailed(log, job.ID, "server is shutting down")
		return
	}
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	if err := q.store.UpdateStatus(ctx, job.ID, StatusProcessing, ""); err != nil {
		log.Error("mark processing failed", "error", err)
		return
	}
	started := time.Now()

	paper, err := q.generate(ctx, job.Request)
	if err == nil {
		paper.ID = job.ID
		err = q.store.SaveResult(ctx, paper)
	}
	if err != nil {
		log.Warn("job failed", "error", err, "took", time.Since(started).String())
		q.markFailed(log, job.ID, err.Error())
		return
	}
	log.Info("job completed", "title", paper.Title, "took", time.Since(started).String())
}

// markFailed does not use the job context, which may be what failed.
func (q *jobQueue) markFailed(log *Logger, id, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.UpdateStatus(ctx, id, StatusFailed, msg); err != nil {
		log.Error("could not mark job failed", "error", err)
	}
}

// Stop refuses new jobs, lets workers drain the queue and waits for them.
// When ctx expires first, in-flight generations are cancelled.
func (q *jobQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.pending)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
