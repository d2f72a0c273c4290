package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		model.User{}, model.AudioFile{}, model.ProcessingJob{}, model.SeparatedStem{}, model.UserUsage{},
	))

	return NewStore(conn)
}

func seedJob(t *testing.T, s *Store, status string) *model.ProcessingJob {
	t.Helper()

	file := &model.AudioFile{
		ID:           "file-1",
		OriginalName: "track.wav",
		Size:         1024,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	_ = s.CreateAudioFile(file)

	job := &model.ProcessingJob{
		ID:          "job-" + status,
		AudioFileID: file.ID,
		Status:      status,
		ExpiresAt:   file.ExpiresAt,
	}
	require.NoError(t, s.CreateJob(job))

	return job
}

func TestUpdateJobProgressMonotonic(t *testing.T) {
	s := newTestStore(t)
	job := seedJob(t, s, model.JobProcessing)

	require.NoError(t, s.UpdateJobProgress(job.ID, 40))
	require.NoError(t, s.UpdateJobProgress(job.ID, 20)) // stale write, must not apply
	require.NoError(t, s.UpdateJobProgress(job.ID, 55))

	got, err := s.JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, got.Progress)
}

func TestUpdateJobProgressIgnoresTerminalJobs(t *testing.T) {
	s := newTestStore(t)
	job := seedJob(t, s, model.JobProcessing)

	require.NoError(t, s.UpdateJobProgress(job.ID, 30))
	require.NoError(t, s.FailJob(job.ID, "boom"))
	require.NoError(t, s.UpdateJobProgress(job.ID, 80))

	got, err := s.JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, 30, got.Progress)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestMarkJobProcessingOnlyFromPending(t *testing.T) {
	s := newTestStore(t)

	pending := seedJob(t, s, model.JobPending)
	require.NoError(t, s.MarkJobProcessing(pending.ID))

	got, err := s.JobByID(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobProcessing, got.Status)

	failed := seedJob(t, s, model.JobFailed)
	require.NoError(t, s.MarkJobProcessing(failed.ID))

	got, err = s.JobByID(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
}

func TestCompleteJobSetsProgressAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	job := seedJob(t, s, model.JobProcessing)

	require.NoError(t, s.CompleteJob(job.ID))

	got, err := s.JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
}

func TestNotFoundMapping(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AudioFileByID("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.JobByID("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.StemByJobAndType("nope", model.StemVocals)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrphanedStems(t *testing.T) {
	s := newTestStore(t)
	job := seedJob(t, s, model.JobCompleted)

	require.NoError(t, s.CreateStem(&model.SeparatedStem{
		ID:        "stem-kept",
		JobID:     job.ID,
		StemType:  model.StemVocals,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, s.CreateStem(&model.SeparatedStem{
		ID:        "stem-orphan",
		JobID:     "deleted-job",
		StemType:  model.StemDrums,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	orphans, err := s.OrphanedStems()
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "stem-orphan", orphans[0].ID)
}

func TestExpiredQueries(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.CreateAudioFile(&model.AudioFile{ID: "old", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, s.CreateAudioFile(&model.AudioFile{ID: "fresh", ExpiresAt: now.Add(time.Hour)}))

	files, err := s.ExpiredAudioFiles(now)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "old", files[0].ID)
}

func TestRecordUsageAccumulates(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordUsage("u1", day, 1, 1000, 0))
	require.NoError(t, s.RecordUsage("u1", day, 1, 500, 200))

	var usage model.UserUsage
	require.NoError(t, s.DB.Where("user_id = ?", "u1").First(&usage).Error)
	assert.Equal(t, 2, usage.FilesProcessed)
	assert.Equal(t, int64(1500), usage.BytesProcessed)
	assert.Equal(t, int64(200), usage.BytesFreed)
}
