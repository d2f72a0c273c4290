package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/separation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BlobStore is the slice of the object store the orchestrator needs.
// *cloudflare.R2Client satisfies it.
type BlobStore interface {
	Store(ctx context.Context, data []byte, contentType, hint string) (key, url string, err error)
	Delete(ctx context.Context, key string) error
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Separator owns the job state machine: it creates pending jobs,
// schedules them on the queue and walks each one to a terminal state.
type Separator struct {
	Store   *db.Store
	Blobs   BlobStore
	Backend separation.Backend
	Queue   *JobQueue
}

// JobStatusResult is the poll view of a job.
type JobStatusResult struct {
	JobID    string            `json:"jobId"`
	Status   string            `json:"status"`
	Progress int               `json:"progress"`
	Stems    map[string]string `json:"stems,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func NewSeparator(store *db.Store, blobs BlobStore, backend separation.Backend, workers int) *Separator {
	s := &Separator{
		Store:   store,
		Blobs:   blobs,
		Backend: backend,
	}

	s.Queue = NewJobQueue(workers, s.run)
	return s
}

// CreateJob persists a pending job for an uploaded file and schedules
// it. The call returns as soon as the row exists, separation itself
// happens on a worker.
func (s *Separator) CreateJob(fileID string) (*model.ProcessingJob, error) {
	file, err := s.Store.AudioFileByID(fileID)
	if err != nil {
		return nil, err
	}

	job := &model.ProcessingJob{
		ID:               uuid.NewString(),
		AudioFileID:      file.ID,
		Status:           model.JobPending,
		EstimatedSeconds: estimateSeconds(file.Size),
		ExpiresAt:        file.ExpiresAt,
	}

	if err := s.Store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to save job record to db, %w", err)
	}

	err = s.Queue.Enqueue(&SeparationJob{
		JobID:       job.ID,
		AudioFileID: file.ID,
	})
	if err != nil {
		// The row exists but no worker will ever pick it up, so fail it
		// right away instead of leaving an eternally pending job.
		if ferr := s.Store.FailJob(job.ID, "Server is busy, try again later"); ferr != nil {
			zap.L().Error("Failed to mark unschedulable job as failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return nil, err
	}

	return job, nil
}

// run executes a single job on a worker goroutine. Adapter errors never
// propagate out as panics or HTTP errors, they end up in the job row.
func (s *Separator) run(j *SeparationJob) error {
	ctx := context.Background()

	if err := s.Store.MarkJobProcessing(j.JobID); err != nil {
		zap.L().Error("Failed to mark job as processing", zap.String("job_id", j.JobID), zap.Error(err))
	}
	s.progress(j.JobID, 5)

	file, err := s.Store.AudioFileByID(j.AudioFileID)
	if err != nil {
		s.fail(j.JobID, "Source file is gone")
		return err
	}

	data, err := s.Blobs.Fetch(ctx, file.StorageURL)
	if err != nil {
		s.fail(j.JobID, "Failed to read the uploaded file")
		return err
	}

	stems, err := s.Backend.Separate(ctx, separation.SourceAudio{
		Name: file.OriginalName,
		Data: data,
	}, func(p int) {
		s.progress(j.JobID, p)
	})
	if err != nil {
		s.fail(j.JobID, userMessage(err))
		return err
	}

	stored := 0
	for _, st := range stems {
		key, url, err := s.Blobs.Store(ctx, st.Data, "audio/wav", st.Filename)
		if err != nil {
			zap.L().Warn("Failed to store separated stem, skipping",
				zap.String("job_id", j.JobID),
				zap.String("stem", st.Type),
				zap.Error(err))
			continue
		}

		err = s.Store.CreateStem(&model.SeparatedStem{
			ID:         uuid.NewString(),
			JobID:      j.JobID,
			StemType:   st.Type,
			Filename:   st.Filename,
			Size:       int64(len(st.Data)),
			StorageKey: key,
			StorageURL: url,
			ExpiresAt:  file.ExpiresAt,
		})
		if err != nil {
			zap.L().Error("Failed to save stem record to db",
				zap.String("job_id", j.JobID),
				zap.String("stem", st.Type),
				zap.Error(err))
			continue
		}

		stored++
	}

	// One stem making it through is enough, missing ones are simply
	// absent from the result mapping.
	if stored == 0 {
		s.fail(j.JobID, "Separation produced no stems")
		return errors.New("no stems could be stored")
	}

	if err := s.Store.CompleteJob(j.JobID); err != nil {
		zap.L().Error("Failed to mark job as completed", zap.String("job_id", j.JobID), zap.Error(err))
		return err
	}

	if err := s.Store.RecordUsage(file.UserID, time.Now(), 1, file.Size, 0); err != nil {
		zap.L().Warn("Failed to record usage", zap.Error(err))
	}

	return nil
}

// JobStatus reads the current state of a job. Pure read, no side
// effects.
func (s *Separator) JobStatus(jobID string) (*JobStatusResult, error) {
	job, err := s.Store.JobByID(jobID)
	if err != nil {
		return nil, err
	}

	res := &JobStatusResult{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.ErrorMessage,
	}

	stems, err := s.Store.StemsByJobID(jobID)
	if err != nil {
		return nil, err
	}

	if len(stems) > 0 {
		res.Stems = make(map[string]string, len(stems))
		for _, st := range stems {
			res.Stems[st.StemType] = st.StorageURL
		}
	}

	return res, nil
}

// progress writes are capped below 100 while the job is active. Only
// completion sets 100.
func (s *Separator) progress(jobID string, p int) {
	if p > 99 {
		p = 99
	}

	if err := s.Store.UpdateJobProgress(jobID, p); err != nil {
		zap.L().Warn("Failed to update job progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Separator) fail(jobID, msg string) {
	if err := s.Store.FailJob(jobID, msg); err != nil {
		zap.L().Error("Failed to mark job as failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// userMessage maps adapter errors onto something fit for the status
// endpoint, without the technical guts.
func userMessage(err error) string {
	var exitErr *separation.ExitError

	switch {
	case errors.Is(err, separation.ErrPollTimeout):
		return "Separation timed out"
	case errors.Is(err, separation.ErrNetwork):
		return "Separation service is unavailable"
	case errors.Is(err, separation.ErrTooLarge):
		return "File is too large to process"
	case errors.Is(err, separation.ErrDownloadFailed):
		return "Separation results could not be retrieved"
	case errors.As(err, &exitErr), errors.Is(err, separation.ErrSpawn):
		return "Separation tool failed"
	default:
		return "Separation failed"
	}
}

// estimateSeconds is a rough size-based guess shown to the client while
// it polls.
func estimateSeconds(size int64) int {
	est := 30 + int(size>>20)*2
	if est > 300 {
		est = 300
	}
	return est
}
