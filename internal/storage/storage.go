// Package storage keeps jobs and media files in memory and removes them once they expire.
package storage

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/observability"
	"audiograb/pkg/calc"
)

// Storer defines the interface for storage operations.
// Jobs and files handed out are copies; changes go through UpdateJob and friends.
type Storer interface {
	SetJob(ctx context.Context, job *entity.Job) error
	GetJobByID(ctx context.Context, id string) (*entity.Job, bool)
	GetJobs(ctx context.Context) ([]*entity.Job, error)
	UpdateJob(ctx context.Context, id string, fn func(job *entity.Job)) error
	UpdateJobStatus(ctx context.Context, id string, status entity.JobStatus, progress int, errorMsg string) error

	SetFile(ctx context.Context, jobID string, file *entity.MediaFile) error
	GetFileByID(ctx context.Context, id string) (*entity.MediaFile, error)

	// CancelJob cancels a job by its ID.
	CancelJob(ctx context.Context, jobID string) error

	// RegisterCancelFunc stores a cancel function for a job.
	RegisterCancelFunc(jobID string, cancelFunc context.CancelFunc)

	// UnregisterCancelFunc removes the cancel function for a job.
	UnregisterCancelFunc(jobID string)

	CleanupExpiredJobs(ctx context.Context, interval time.Duration)
}

type storage struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics

	mu    sync.RWMutex
	jobs  map[string]*entity.Job       // job UUID : job
	files map[string]*entity.MediaFile // file UUID : file

	cancelMu    sync.RWMutex
	cancelFuncs map[string]context.CancelFunc // job UUID : cancel func
}

// New creates a new in-memory storage instance and starts the cleanup loop.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) Storer {
	stg := newStorage(log, cfg, metrics)

	go stg.CleanupExpiredJobs(ctx, cfg.Storage.CleanupInterval)

	return stg
}

func newStorage(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *storage {
	return &storage{
		log:         log.With(slog.String("package", "storage")),
		cfg:         cfg,
		metrics:     metrics,
		jobs:        make(map[string]*entity.Job),
		files:       make(map[string]*entity.MediaFile),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

func (stg *storage) SetJob(ctx context.Context, job *entity.Job) error {
	if job == nil {
		return errs.ErrJobNil
	}

	if job.UUID == "" {
		return errs.ErrJobIDEmpty
	}

	stg.mu.Lock()
	stg.jobs[job.UUID] = cloneJob(job)
	jobs, files := len(stg.jobs), len(stg.files)
	stg.mu.Unlock()

	stg.metrics.SetStored(jobs, files)
	stg.log.DebugContext(ctx, "job stored", slog.Any("job", job))

	return nil
}

func (stg *storage) GetJobByID(_ context.Context, id string) (*entity.Job, bool) {
	stg.mu.RLock()
	defer stg.mu.RUnlock()

	job, ok := stg.jobs[id]
	if !ok {
		return nil, false
	}

	return cloneJob(job), true
}

// GetJobs returns all jobs, newest first.
func (stg *storage) GetJobs(_ context.Context) ([]*entity.Job, error) {
	stg.mu.RLock()
	defer stg.mu.RUnlock()

	if len(stg.jobs) == 0 {
		return nil, errs.ErrNoJobs
	}

	jobs := make([]*entity.Job, 0, len(stg.jobs))
	for _, job := range stg.jobs {
		jobs = append(jobs, cloneJob(job))
	}

	slices.SortFunc(jobs, func(a, b *entity.Job) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.UUID, b.UUID))
	})

	return jobs, nil
}

// UpdateJob applies fn to the stored job under the write lock.
func (stg *storage) UpdateJob(_ context.Context, id string, fn func(job *entity.Job)) error {
	stg.mu.Lock()
	defer stg.mu.Unlock()

	job, ok := stg.jobs[id]
	if !ok {
		return errs.ErrJobNotFound
	}

	fn(job)
	job.UpdatedAt = time.Now()

	return nil
}

// UpdateJobStatus sets status, progress and error. A cancelled job stays cancelled.
func (stg *storage) UpdateJobStatus(ctx context.Context,
	id string,
	status entity.JobStatus,
	progress int,
	errorMsg string) error {
	stg.mu.Lock()
	defer stg.mu.Unlock()

	job, ok := stg.jobs[id]
	if !ok {
		return errs.ErrJobNotFound
	}

	if job.Status == entity.JobStatusCancelled {
		return nil
	}

	job.Status = status
	job.UpdatedAt = time.Now()

	if progress > 0 {
		job.Progress = min(progress, 100)
	}

	if errorMsg != "" {
		job.Error = errorMsg
	}

	if job.Progress > 0 && job.Progress < 100 {
		job.EstimatedETA = calc.ETA(int64(job.Progress), 100, job.CreatedAt)
	} else {
		job.EstimatedETA = 0
	}

	stg.log.DebugContext(ctx, "job status updated", slog.Any("job", job))

	return nil
}

// SetFile stores file and attaches it to its job, replacing an entry with the same UUID.
func (stg *storage) SetFile(ctx context.Context, jobID string, file *entity.MediaFile) error {
	if file == nil {
		return errs.ErrFileNil
	}

	if file.UUID == "" {
		return errs.ErrFileUUID
	}

	if jobID == "" {
		return errs.ErrJobIDEmpty
	}

	stg.mu.Lock()

	job, exists := stg.jobs[jobID]
	if !exists {
		stg.mu.Unlock()

		return errs.ErrJobNotFound
	}

	f := *file
	f.JobUUID = jobID
	stg.files[f.UUID] = &f

	idx := slices.IndexFunc(job.Files, func(m entity.MediaFile) bool { return m.UUID == f.UUID })
	if idx >= 0 {
		job.Files[idx] = f
	} else {
		job.Files = append(job.Files, f)
	}

	jobs, files := len(stg.jobs), len(stg.files)
	stg.mu.Unlock()

	stg.metrics.SetStored(jobs, files)
	stg.log.DebugContext(ctx, "file stored", slog.Any("file", f))

	return nil
}

func (stg *storage) GetFileByID(_ context.Context, id string) (*entity.MediaFile, error) {
	stg.mu.RLock()
	defer stg.mu.RUnlock()

	f := stg.files[id]
	if f == nil {
		return nil, errs.ErrFileNotFound
	}

	c := *f

	return &c, nil
}

// CancelJob cancels a job by its ID. A queued job without a cancel func is only marked,
// the worker skips it when it comes up.
func (stg *storage) CancelJob(ctx context.Context, jobID string) error {
	stg.mu.Lock()

	job := stg.jobs[jobID]
	if job == nil {
		stg.mu.Unlock()

		return errs.ErrJobNotFound
	}

	if job.Status.Terminal() {
		status := job.Status
		stg.mu.Unlock()

		return fmt.Errorf("%w: job is %s", errs.ErrJobNotCancellable, status)
	}

	job.Status = entity.JobStatusCancelled
	job.Error = errs.ErrJobCancelled.Error()
	job.EstimatedETA = 0
	job.UpdatedAt = time.Now()

	stg.mu.Unlock()

	stg.cancelMu.RLock()
	cancelFunc := stg.cancelFuncs[jobID]
	stg.cancelMu.RUnlock()

	if cancelFunc == nil {
		stg.log.InfoContext(ctx, "job cancelled before start", slog.String("job_id", jobID))

		return nil
	}

	cancelFunc()

	stg.log.InfoContext(ctx, "job cancelled", slog.String("job_id", jobID))

	return nil
}

// RegisterCancelFunc stores a cancel function for a job.
func (stg *storage) RegisterCancelFunc(jobID string, cancelFunc context.CancelFunc) {
	stg.cancelMu.Lock()
	defer stg.cancelMu.Unlock()

	stg.cancelFuncs[jobID] = cancelFunc
}

// UnregisterCancelFunc removes the cancel function for a job.
func (stg *storage) UnregisterCancelFunc(jobID string) {
	stg.cancelMu.Lock()
	defer stg.cancelMu.Unlock()

	delete(stg.cancelFuncs, jobID)
}

func cloneJob(j *entity.Job) *entity.Job {
	c := *j
	c.Request.Select = slices.Clone(j.Request.Select)
	c.Tracks = slices.Clone(j.Tracks)
	c.Files = slices.Clone(j.Files)

	if j.Summary != nil {
		s := *j.Summary
		s.SuccessfulTitles = slices.Clone(s.SuccessfulTitles)
		s.FailedTitles = slices.Clone(s.FailedTitles)
		c.Summary = &s
	}

	return &c
}
