package service

import (
	"context"
	"sync"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"go.uber.org/zap"
)

// BlobDeleter is the slice of the object store the sweep needs.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Cleanup periodically removes expired audio files, jobs and stems
// together with their object store blobs. Blob deletion is best-effort,
// a failure on one record never stalls the sweep.
type Cleanup struct {
	Store    *db.Store
	Blobs    BlobDeleter
	Interval time.Duration

	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	running bool
}

// CleanupSummary reports what a single sweep removed.
type CleanupSummary struct {
	FilesDeleted int
	JobsDeleted  int
	StemsDeleted int
	BytesFreed   int64
}

func NewCleanup(store *db.Store, blobs BlobDeleter, interval time.Duration) *Cleanup {
	return &Cleanup{
		Store:    store,
		Blobs:    blobs,
		Interval: interval,
	}
}

// Start attaches the recurring sweep. Calling Start on a running
// service is a no-op with a warning.
func (c *Cleanup) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		zap.L().Warn("Cleanup service already running, ignoring Start")
		return
	}

	c.ticker = time.NewTicker(c.Interval)
	c.done = make(chan struct{})
	c.running = true

	zap.L().Debug("Cleanup service attached", zap.Duration("tick_every", c.Interval))

	go func(ticker *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-ticker.C:
				if _, err := c.RunOnce(context.Background()); err != nil {
					zap.L().Error("Cleanup sweep failed", zap.Error(err))
				}
			case <-done:
				return
			}
		}
	}(c.ticker, c.done)
}

// Stop cancels the recurring sweep. Safe to call when not running.
func (c *Cleanup) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.ticker.Stop()
	close(c.done)
	c.running = false
}

// RunOnce executes a single sweep and returns what it removed. Also
// used for one-shot manual invocation via the --cleanup flag.
func (c *Cleanup) RunOnce(ctx context.Context) (CleanupSummary, error) {
	var sum CleanupSummary

	now := time.Now()
	freedByUser := map[string]int64{}

	files, err := c.Store.ExpiredAudioFiles(now)
	if err != nil {
		return sum, err
	}

	for _, f := range files {
		if err := c.Blobs.Delete(ctx, f.StorageKey); err != nil {
			zap.L().Warn("Failed to delete expired blob, continuing",
				zap.String("key", f.StorageKey),
				zap.Error(err))
		}

		if err := c.Store.DeleteAudioFile(f.ID); err != nil {
			zap.L().Error("Failed to delete expired audio file row", zap.String("id", f.ID), zap.Error(err))
			continue
		}

		sum.FilesDeleted++
		sum.BytesFreed += f.Size
		freedByUser[f.UserID] += f.Size
	}

	stems, err := c.Store.ExpiredStems(now)
	if err != nil {
		return sum, err
	}

	for _, st := range stems {
		if err := c.Blobs.Delete(ctx, st.StorageKey); err != nil {
			zap.L().Warn("Failed to delete expired stem blob, continuing",
				zap.String("key", st.StorageKey),
				zap.Error(err))
		}

		if err := c.Store.DeleteStem(st.ID); err != nil {
			zap.L().Error("Failed to delete expired stem row", zap.String("id", st.ID), zap.Error(err))
			continue
		}

		sum.StemsDeleted++
		sum.BytesFreed += st.Size
	}

	jobs, err := c.Store.ExpiredJobs(now)
	if err != nil {
		return sum, err
	}

	for _, j := range jobs {
		if err := c.Store.DeleteJob(j.ID); err != nil {
			zap.L().Error("Failed to delete expired job row", zap.String("id", j.ID), zap.Error(err))
			continue
		}

		sum.JobsDeleted++
	}

	// Stems whose parent job is gone are removed regardless of their
	// own expiry.
	orphans, err := c.Store.OrphanedStems()
	if err != nil {
		return sum, err
	}

	for _, st := range orphans {
		if err := c.Blobs.Delete(ctx, st.StorageKey); err != nil {
			zap.L().Warn("Failed to delete orphaned stem blob, continuing",
				zap.String("key", st.StorageKey),
				zap.Error(err))
		}

		if err := c.Store.DeleteStem(st.ID); err != nil {
			zap.L().Error("Failed to delete orphaned stem row", zap.String("id", st.ID), zap.Error(err))
			continue
		}

		sum.StemsDeleted++
		sum.BytesFreed += st.Size
	}

	for userID, freed := range freedByUser {
		if err := c.Store.RecordUsage(userID, now, 0, 0, freed); err != nil {
			zap.L().Warn("Failed to record freed bytes", zap.Error(err))
		}
	}

	if sum.FilesDeleted+sum.JobsDeleted+sum.StemsDeleted > 0 {
		zap.L().Info("Cleanup sweep finished",
			zap.Int("files", sum.FilesDeleted),
			zap.Int("jobs", sum.JobsDeleted),
			zap.Int("stems", sum.StemsDeleted),
			zap.Int64("bytes_freed", sum.BytesFreed))
	}

	return sum, nil
}
