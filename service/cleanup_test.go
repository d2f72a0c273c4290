package service

import (
	"context"
	"testing"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedExpired(t *testing.T, store *db.Store, blobs *fakeBlobs) {
	t.Helper()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	blobs.put("old-file", []byte("old"))
	require.NoError(t, store.CreateAudioFile(&model.AudioFile{
		ID: "old-file", UserID: "u1", Size: 3, StorageKey: "old-file", StorageURL: "mem://old-file", ExpiresAt: past,
	}))
	require.NoError(t, store.CreateAudioFile(&model.AudioFile{
		ID: "fresh-file", Size: 5, StorageKey: "fresh-file", StorageURL: "mem://fresh-file", ExpiresAt: future,
	}))

	require.NoError(t, store.CreateJob(&model.ProcessingJob{
		ID: "old-job", AudioFileID: "old-file", Status: model.JobCompleted, ExpiresAt: past,
	}))
	require.NoError(t, store.CreateJob(&model.ProcessingJob{
		ID: "fresh-job", AudioFileID: "fresh-file", Status: model.JobPending, ExpiresAt: future,
	}))

	blobs.put("old-stem", []byte("ss"))
	require.NoError(t, store.CreateStem(&model.SeparatedStem{
		ID: "old-stem", JobID: "old-job", StemType: model.StemVocals, Size: 2,
		StorageKey: "old-stem", StorageURL: "mem://old-stem", ExpiresAt: past,
	}))
	require.NoError(t, store.CreateStem(&model.SeparatedStem{
		ID: "fresh-stem", JobID: "fresh-job", StemType: model.StemDrums, Size: 4,
		StorageKey: "fresh-stem", StorageURL: "mem://fresh-stem", ExpiresAt: future,
	}))
}

func TestRunOnceSweepsExpiredRecords(t *testing.T) {
	store := newTestStore(t)
	blobs := newFakeBlobs()
	seedExpired(t, store, blobs)

	c := NewCleanup(store, blobs, time.Hour)

	sum, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.FilesDeleted)
	assert.Equal(t, 1, sum.JobsDeleted)
	assert.Equal(t, 1, sum.StemsDeleted)
	assert.Equal(t, int64(5), sum.BytesFreed) // 3 file bytes + 2 stem bytes

	_, err = store.AudioFileByID("old-file")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = store.JobByID("old-job")
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Untouched records survive.
	_, err = store.AudioFileByID("fresh-file")
	assert.NoError(t, err)
	_, err = store.JobByID("fresh-job")
	assert.NoError(t, err)

	assert.Contains(t, blobs.deleted, "old-file")
	assert.Contains(t, blobs.deleted, "old-stem")
	assert.NotContains(t, blobs.deleted, "fresh-file")
}

func TestRunOnceIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	blobs := newFakeBlobs()
	seedExpired(t, store, blobs)

	c := NewCleanup(store, blobs, time.Hour)

	_, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	sum, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.FilesDeleted)
	assert.Zero(t, sum.JobsDeleted)
	assert.Zero(t, sum.StemsDeleted)
	assert.Zero(t, sum.BytesFreed)
}

func TestRunOnceRemovesOrphanedStemsRegardlessOfExpiry(t *testing.T) {
	store := newTestStore(t)
	blobs := newFakeBlobs()

	blobs.put("orphan", []byte("o"))
	require.NoError(t, store.CreateStem(&model.SeparatedStem{
		ID: "orphan", JobID: "long-gone-job", StemType: model.StemBass, Size: 1,
		StorageKey: "orphan", StorageURL: "mem://orphan",
		ExpiresAt: time.Now().Add(24 * time.Hour), // not expired
	}))

	c := NewCleanup(store, blobs, time.Hour)

	sum, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.StemsDeleted)

	_, err = store.StemByJobAndType("long-gone-job", model.StemBass)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRunOnceContinuesPastBlobDeleteFailure(t *testing.T) {
	store := newTestStore(t)
	blobs := newFakeBlobs()
	seedExpired(t, store, blobs)
	blobs.failKeys["old-file"] = true

	c := NewCleanup(store, blobs, time.Hour)

	sum, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	// The row still goes away even though the blob delete failed.
	assert.Equal(t, 1, sum.FilesDeleted)
	_, err = store.AudioFileByID("old-file")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRunOnceRecordsFreedBytes(t *testing.T) {
	store := newTestStore(t)
	blobs := newFakeBlobs()
	seedExpired(t, store, blobs)

	c := NewCleanup(store, blobs, time.Hour)
	_, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	var usage model.UserUsage
	require.NoError(t, store.DB.Where("user_id = ?", "u1").First(&usage).Error)
	assert.Equal(t, int64(3), usage.BytesFreed)
}

func TestStartStopLifecycle(t *testing.T) {
	store := newTestStore(t)
	c := NewCleanup(store, newFakeBlobs(), time.Hour)

	// Stop before Start is safe.
	c.Stop()

	c.Start()
	c.Start() // second Start is a warned no-op
	assert.True(t, c.running)

	c.Stop()
	assert.False(t, c.running)
	c.Stop() // double Stop is safe

	// Restart works.
	c.Start()
	c.Stop()
}
