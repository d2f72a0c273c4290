// Package service contains the job orchestration and retention logic
// that sits between the HTTP layer and the adapters.
package service

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

const queueBacklog = 100

// SeparationJob is one unit of work for the worker pool.
type SeparationJob struct {
	JobID       string
	AudioFileID string
	Done        chan error
}

// JobQueue is an in-process work queue with a fixed worker pool. Each
// job runs on exactly one worker, so all status writes for a given job
// are issued from a single goroutine in order.
type JobQueue struct {
	jobs    chan *SeparationJob
	running atomic.Int32
	workers int
	run     func(*SeparationJob) error
}

func NewJobQueue(workers int, run func(*SeparationJob) error) *JobQueue {
	if workers <= 0 {
		workers = 1
	}

	return &JobQueue{
		jobs:    make(chan *SeparationJob, queueBacklog),
		workers: workers,
		run:     run,
	}
}

func (q *JobQueue) StartWorkerPool() {
	for range q.workers {
		go q.worker()
	}
}

func (q *JobQueue) worker() {
	for job := range q.jobs {
		err := q.run(job)

		if job.Done != nil {
			job.Done <- err
			close(job.Done)
		}

		q.running.Add(-1)

		if err != nil {
			zap.L().Error("Separation job finished with an error",
				zap.String("job_id", job.JobID),
				zap.Error(err))
		} else {
			zap.L().Debug("Separation job finished successfully", zap.String("job_id", job.JobID))
		}
	}
}

// Enqueue hands a job to the pool without blocking the caller.
func (q *JobQueue) Enqueue(job *SeparationJob) error {
	select {
	case q.jobs <- job:
		q.running.Add(1)
		zap.L().Debug("New separation job enqueued",
			zap.Int32("enqueued", q.running.Load()),
			zap.String("job_id", job.JobID))
		return nil
	default:
		return errors.New("job queue full")
	}
}
