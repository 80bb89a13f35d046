package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"audiograb/internal/entity"
)

// strayExts are the leftovers swept from the downloads root.
var strayExts = []string{".mp3", ".m4a", ".wav", ".flac", ".webm", ".opus", ".zip", ".part", ".ytdl"}

func (stg *storage) CleanupExpiredJobs(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := stg.log.With(slog.String("action", "cleanup_expired_jobs"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			stg.performCleanup(ctx)
		case <-ctx.Done():
			log.Info("cleanup expired jobs stopped")

			return
		}
	}
}

func (stg *storage) performCleanup(ctx context.Context) {
	log := stg.log
	now := time.Now()

	stg.mu.RLock()
	expiredJobs := stg.getExpiredJobs(now)
	stg.mu.RUnlock()

	if stg.cfg.Dir.Downloads != "" && stg.cfg.Storage.TTL > 0 {
		checked, deleted, err := CleanupDir(stg.cfg.Dir.Downloads, stg.cfg.Storage.TTL, strayExts)
		if err != nil && !os.IsNotExist(err) {
			log.WarnContext(ctx, "sweep downloads dir", slog.Any("error", err))
		} else if deleted > 0 {
			log.InfoContext(ctx, "stray files removed", slog.Int("checked", checked), slog.Int("deleted", deleted))
		}
	}

	if len(expiredJobs) == 0 {
		log.DebugContext(ctx, "no expired jobs found to clean up")

		return
	}

	log.InfoContext(ctx, "about to remove expired jobs", slog.Int("count", len(expiredJobs)))

	deletedFiles := 0
	for _, job := range expiredJobs {
		deletedFiles += stg.cleanupJob(ctx, job)
	}

	stg.mu.RLock()
	jobs, files := len(stg.jobs), len(stg.files)
	stg.mu.RUnlock()

	stg.metrics.RecordCleanup(len(expiredJobs), deletedFiles)
	stg.metrics.SetStored(jobs, files)
}

// getExpiredJobs returns copies; the caller holds at least the read lock.
func (stg *storage) getExpiredJobs(now time.Time) []*entity.Job {
	var expiredJobs []*entity.Job

	for _, job := range stg.jobs {
		if job.ExpiresAt.Before(now) {
			expiredJobs = append(expiredJobs, cloneJob(job))
		}
	}

	return expiredJobs
}

// cleanupJob deletes what the job left on disk and forgets it. Files delivered into a
// user folder are kept. It returns the number of removed files.
func (stg *storage) cleanupJob(ctx context.Context, job *entity.Job) int {
	if job == nil {
		return 0
	}

	log := stg.log.With(slog.String("job_id", job.UUID))

	stg.cancelMu.RLock()
	cancel := stg.cancelFuncs[job.UUID]
	stg.cancelMu.RUnlock()

	if cancel != nil {
		cancel()
	}

	deletedFiles := 0

	remove := func(name string) {
		if name == "" {
			return
		}

		if !filepath.IsAbs(name) {
			log.ErrorContext(ctx, "non-absolute path found", slog.String("filename", name))

			return
		}

		err := os.Remove(name)
		if err != nil {
			if !os.IsNotExist(err) {
				log.ErrorContext(ctx, "failed to delete file", slog.String("filename", name), slog.Any("error", err))
			}

			return
		}

		deletedFiles++

		log.DebugContext(ctx, "successfully deleted file", slog.String("filename", name))
	}

	if job.TempDir {
		for _, f := range job.Files {
			remove(f.Filename)
		}
	}

	remove(job.Archive)

	if job.TempDir && job.Dir != "" && filepath.IsAbs(job.Dir) {
		if err := os.RemoveAll(job.Dir); err != nil {
			log.ErrorContext(ctx, "failed to delete job dir", slog.String("dir", job.Dir), slog.Any("error", err))
		}
	}

	stg.mu.Lock()
	for _, f := range job.Files {
		delete(stg.files, f.UUID)
	}

	delete(stg.jobs, job.UUID)
	stg.mu.Unlock()

	stg.UnregisterCancelFunc(job.UUID)

	log.DebugContext(ctx, "job cleaned up",
		slog.Int("deleted_files", deletedFiles),
		slog.Int("files_count", len(job.Files)))

	return deletedFiles
}
