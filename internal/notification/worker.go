package notification

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"push-dispatch-backend/internal/model"
)

// ErrQueueFull is returned by TryDispatch when no queue slot is free.
var ErrQueueFull = errors.New("dispatch queue is full")

// Dispatcher runs one dispatch call. *Engine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, target model.Target, msg *model.DeliveryMessage) (*model.DispatchSummary, error)
}

// Job is one queued dispatch.
type Job struct {
	Target  model.Target
	Message model.DeliveryMessage
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size       int
	jobs       chan Job
	dispatcher Dispatcher
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, dispatcher Dispatcher) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:       size,
		jobs:       make(chan Job, queueSize), // Buffered channel
		dispatcher: dispatcher,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := logrus.WithField("worker", id)
	log.Debug("worker started")
	for {
		select {
		case job := <-wp.jobs:
			summary, err := wp.dispatcher.Dispatch(ctx, job.Target, &job.Message)
			if err != nil {
				log.WithError(err).Warn("queued dispatch failed")
				continue
			}
			log.WithFields(logrus.Fields{
				"dispatch_id": summary.ID,
				"attempted":   summary.Attempted,
				"succeeded":   summary.Succeeded,
			}).Debug("queued dispatch done")
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues a job, blocking until a slot is free or ctx ends.
func (wp *WorkerPool) Dispatch(ctx context.Context, job Job) error {
	select {
	case wp.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryDispatch queues a job without blocking.
func (wp *WorkerPool) TryDispatch(job Job) error {
	select {
	case wp.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}
