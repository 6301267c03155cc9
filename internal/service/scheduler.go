package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull indicates the scheduler queue is saturated and the job was not
// enqueued. Scheduling never blocks the caller.
var ErrQueueFull = errors.New("scheduler: queue full")

// ErrSchedulerClosed indicates the scheduler has been shut down.
var ErrSchedulerClosed = errors.New("scheduler: closed")

type evaluationJob struct {
	reviewID uint
	rawText  string
}

// Scheduler runs evaluation jobs on a bounded worker pool, detaching pipeline
// execution from the request cycle. The pool size bounds how many
// evaluations run concurrently.
type Scheduler struct {
	jobs    chan evaluationJob
	process func(ctx context.Context, reviewID uint, rawText string)
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler starts the worker pool. workers and queueSize fall back to 4
// and 64 when zero.
func NewScheduler(workers, queueSize int, logger zerolog.Logger, process func(ctx context.Context, reviewID uint, rawText string)) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	s := &Scheduler{
		jobs:    make(chan evaluationJob, queueSize),
		process: process,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}

	return s
}

// Schedule enqueues exactly one pipeline execution for the record and returns
// immediately. The caller observes completion by polling the record.
func (s *Scheduler) Schedule(reviewID uint, rawText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}

	select {
	case s.jobs <- evaluationJob{reviewID: reviewID, rawText: rawText}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for in-flight evaluations to finish.
// Safe to call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		// Jobs outlive the request that scheduled them.
		s.process(context.Background(), job.reviewID, job.rawText)
	}
}
