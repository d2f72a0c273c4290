package db

import (
	"errors"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

// Store wraps the gorm handle with the queries the services need.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateAudioFile(f *model.AudioFile) error {
	return s.DB.Create(f).Error
}

func (s *Store) AudioFileByID(id string) (*model.AudioFile, error) {
	var f model.AudioFile

	err := s.DB.
		Where("id = ?", id).
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &f, nil
}

func (s *Store) CreateJob(j *model.ProcessingJob) error {
	return s.DB.Create(j).Error
}

func (s *Store) JobByID(id string) (*model.ProcessingJob, error) {
	var j model.ProcessingJob

	err := s.DB.
		Where("id = ?", id).
		First(&j).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &j, nil
}

// MarkJobProcessing flips a pending job to processing. Terminal jobs are
// left alone so a late worker can't resurrect a failed job.
func (s *Store) MarkJobProcessing(id string) error {
	return s.DB.
		Model(model.ProcessingJob{}).
		Where("id = ? AND status = ?", id, model.JobPending).
		Update("status", model.JobProcessing).
		Error
}

// UpdateJobProgress applies a progress write only when it moves the value
// forward, so a stale poll result can't clobber a later one.
func (s *Store) UpdateJobProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return s.DB.
		Model(model.ProcessingJob{}).
		Where("id = ? AND progress < ? AND status IN ?", id, progress, []string{model.JobPending, model.JobProcessing}).
		Update("progress", progress).
		Error
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now()

	return s.DB.
		Model(model.ProcessingJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.JobCompleted,
			"progress":     100,
			"completed_at": &now,
		}).
		Error
}

func (s *Store) FailJob(id, msg string) error {
	now := time.Now()

	return s.DB.
		Model(model.ProcessingJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        model.JobFailed,
			"error_message": msg,
			"completed_at":  &now,
		}).
		Error
}

func (s *Store) CreateStem(st *model.SeparatedStem) error {
	return s.DB.Create(st).Error
}

func (s *Store) StemsByJobID(jobID string) ([]model.SeparatedStem, error) {
	var stems []model.SeparatedStem

	err := s.DB.
		Where("job_id = ?", jobID).
		Order("stem_type").
		Find(&stems).
		Error
	if err != nil {
		return nil, err
	}

	return stems, nil
}

func (s *Store) StemByJobAndType(jobID, stemType string) (*model.SeparatedStem, error) {
	var st model.SeparatedStem

	err := s.DB.
		Where("job_id = ? AND stem_type = ?", jobID, stemType).
		First(&st).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &st, nil
}

func (s *Store) ExpiredAudioFiles(now time.Time) ([]model.AudioFile, error) {
	var files []model.AudioFile

	err := s.DB.
		Where("expires_at < ? AND expired = ?", now, false).
		Find(&files).
		Error
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (s *Store) ExpiredJobs(now time.Time) ([]model.ProcessingJob, error) {
	var jobs []model.ProcessingJob

	err := s.DB.
		Where("expires_at < ?", now).
		Find(&jobs).
		Error
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (s *Store) ExpiredStems(now time.Time) ([]model.SeparatedStem, error) {
	var stems []model.SeparatedStem

	err := s.DB.
		Where("expires_at < ?", now).
		Find(&stems).
		Error
	if err != nil {
		return nil, err
	}

	return stems, nil
}

// OrphanedStems returns stems whose parent job no longer exists. These
// are a cleanup target regardless of their own expiry.
func (s *Store) OrphanedStems() ([]model.SeparatedStem, error) {
	var stems []model.SeparatedStem

	err := s.DB.
		Where("job_id NOT IN (?)", s.DB.Model(model.ProcessingJob{}).Select("id")).
		Find(&stems).
		Error
	if err != nil {
		return nil, err
	}

	return stems, nil
}

func (s *Store) DeleteAudioFile(id string) error {
	return s.DB.Where("id = ?", id).Delete(model.AudioFile{}).Error
}

func (s *Store) DeleteJob(id string) error {
	return s.DB.Where("id = ?", id).Delete(model.ProcessingJob{}).Error
}

func (s *Store) DeleteStem(id string) error {
	return s.DB.Where("id = ?", id).Delete(model.SeparatedStem{}).Error
}

// RecordUsage upserts the daily usage counters for a user. The empty
// user ID buckets anonymous traffic.
func (s *Store) RecordUsage(userID string, day time.Time, files int, bytesProcessed, bytesFreed int64) error {
	day = day.Truncate(24 * time.Hour)

	return s.DB.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"files_processed": gorm.Expr("user_usages.files_processed + ?", files),
				"bytes_processed": gorm.Expr("user_usages.bytes_processed + ?", bytesProcessed),
				"bytes_freed":     gorm.Expr("user_usages.bytes_freed + ?", bytesFreed),
			}),
		}).
		Create(&model.UserUsage{
			UserID:         userID,
			Date:           day,
			FilesProcessed: files,
			BytesProcessed: bytesProcessed,
			BytesFreed:     bytesFreed,
		}).
		Error
}
