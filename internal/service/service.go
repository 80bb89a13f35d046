// Package service runs download jobs: extraction, then download, transcode and tagging per track.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/consts"
	"audiograb/internal/downloader"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/extractor"
	"audiograb/internal/history"
	"audiograb/internal/observability"
	"audiograb/internal/storage"
	"audiograb/internal/tagger"
	"audiograb/internal/transcoder"
	"audiograb/pkg/calc"
	"audiograb/pkg/ytlink"
)

const (
	// workDirName holds source downloads inside the job scratch dir.
	workDirName = ".src"
	// archivePrefix starts every ZIP name.
	archivePrefix = "download"
)

type job struct {
	log *slog.Logger
	cfg *config.Config

	storage    storage.Storer
	extractor  extractor.Extractor
	downloader downloader.Downloader
	transcoder transcoder.Transcoder
	tagger     tagger.Tagger
	history    *history.Store
	metrics    *observability.Metrics

	jobQueue chan string // job UUIDs

	wg        sync.WaitGroup
	closed    atomic.Bool
	startOnce sync.Once
}

// Job is the job service.
type Job interface {
	Start(ctx context.Context)
	// Wait blocks until every worker has returned.
	Wait()

	Preview(ctx context.Context, url string) (*entity.Preview, error)
	Enqueue(ctx context.Context, req entity.Request) (*entity.Job, error)
	// Run processes req in the calling goroutine and returns the finished job.
	Run(ctx context.Context, req entity.Request, obs Observer) (*entity.Job, error)
	Cancel(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*entity.Job, error)
	GetAll(ctx context.Context) ([]*entity.Job, error)
	File(ctx context.Context, id string) (*entity.MediaFile, error)
	Metadata(ctx context.Context, id string) (tagger.Metadata, error)
	Archive(ctx context.Context, id string) (string, error)
	History(ctx context.Context, limit int) ([]history.Entry, history.Stats, error)
}

var _ Job = (*job)(nil)

// Deps are the collaborators of the job service. History and Metrics may be nil.
type Deps struct {
	Storage    storage.Storer
	Extractor  extractor.Extractor
	Downloader downloader.Downloader
	Transcoder transcoder.Transcoder
	Tagger     tagger.Tagger
	History    *history.Store
	Metrics    *observability.Metrics
}

// New creates the job service.
func New(cfg *config.Config, log *slog.Logger, deps Deps) Job {
	return &job{
		log:        log.With(slog.String("package", "service")),
		cfg:        cfg,
		storage:    deps.Storage,
		extractor:  deps.Extractor,
		downloader: deps.Downloader,
		transcoder: deps.Transcoder,
		tagger:     deps.Tagger,
		history:    deps.History,
		metrics:    deps.Metrics,
		jobQueue:   make(chan string, max(cfg.Job.QueueSize, 1)),
	}
}

func (svc *job) Start(ctx context.Context) {
	svc.startOnce.Do(func() {
		for i := range max(svc.cfg.Job.Workers, 1) {
			svc.wg.Add(1)
			go svc.worker(ctx, i)
		}
	})
}

func (svc *job) Wait() {
	svc.wg.Wait()
}

// Preview resolves url into tracks without downloading anything.
func (svc *job) Preview(ctx context.Context, url string) (*entity.Preview, error) {
	url = strings.TrimSpace(url)
	if !ytlink.Validate(url) {
		return nil, fmt.Errorf("%w: %q", errs.ErrInvalidURL, url)
	}

	ctx, cancel := svc.extractContext(ctx)
	defer cancel()

	res, err := svc.extractor.Extract(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}

	return &entity.Preview{
		URL:      url,
		Kind:     string(res.Kind),
		Title:    res.Title,
		Tracks:   res.Tracks,
		Estimate: entity.NewEstimate(res.Tracks),
	}, nil
}

// Enqueue stores a job for req and queues it. An active job for the same request is
// returned together with errs.ErrJobAlreadyExists.
func (svc *job) Enqueue(ctx context.Context, req entity.Request) (*entity.Job, error) {
	if svc.closed.Load() {
		return nil, errs.ErrServiceClosed
	}

	job, err := svc.newJob(req)
	if err != nil {
		return nil, err
	}

	existing, ok := svc.storage.GetJobByID(ctx, job.UUID)
	if ok && existing.Status != entity.JobStatusError && existing.Status != entity.JobStatusCancelled {
		return existing, errs.ErrJobAlreadyExists
	}

	if err := svc.storage.SetJob(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	svc.metrics.RecordJobCreated()

	select {
	case svc.jobQueue <- job.UUID:
		svc.log.InfoContext(ctx, "job enqueued", slog.Any("job", job))

		return job, nil
	case <-ctx.Done():
		svc.setFinal(ctx, job, entity.JobStatusError, "enqueue cancelled")

		return nil, fmt.Errorf("enqueue job canceled: %w", ctx.Err())
	default:
		svc.setFinal(ctx, job, entity.JobStatusError, errs.ErrJobQueueFull.Error())
		svc.metrics.RecordJobFailed()

		return nil, fmt.Errorf("%w: %d/%d", errs.ErrJobQueueFull, len(svc.jobQueue), cap(svc.jobQueue))
	}
}

// Run processes req synchronously. The returned error is the job's failure, if any.
func (svc *job) Run(ctx context.Context, req entity.Request, obs Observer) (*entity.Job, error) {
	job, err := svc.newJob(req)
	if err != nil {
		return nil, err
	}

	if err := svc.storage.SetJob(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	svc.metrics.RecordJobCreated()

	runErr := svc.processJob(ctx, job, obs)

	final, ok := svc.storage.GetJobByID(ctx, job.UUID)
	if !ok {
		return nil, errs.ErrJobNotFound
	}

	return final, runErr
}

// newJob applies defaults, validates req and lays out the job directories.
func (svc *job) newJob(req entity.Request) (*entity.Job, error) {
	req = req.WithDefaults(entity.Defaults{
		Format:  entity.Format(svc.cfg.Transcode.DefaultFormat),
		Quality: svc.cfg.Transcode.DefaultQuality,
	})

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !transcoder.Supported(req.Format) {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, req.Format)
	}

	now := time.Now()
	ttl := svc.cfg.Storage.TTL

	if ttl <= 0 {
		ttl = consts.DefaultJobTTL
	}

	job := &entity.Job{
		UUID:      req.Key(),
		Request:   req,
		Status:    entity.JobStatusStarting,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	switch req.Delivery {
	case entity.DeliveryFolder:
		folder := filepath.Clean(req.Folder)
		if !svc.cfg.Dir.FolderAllowed(folder) {
			return nil, fmt.Errorf("%w: %q", errs.ErrInvalidFolder, req.Folder)
		}

		job.Dir = folder
	default:
		job.Dir = filepath.Join(svc.cfg.Dir.Downloads, job.UUID)
		job.TempDir = true
	}

	return job, nil
}

func (svc *job) worker(ctx context.Context, workerID int) {
	defer svc.wg.Done()

	log := svc.log.With(slog.Int("worker_id", workerID))

	for {
		select {
		case id, ok := <-svc.jobQueue:
			if !ok {
				log.WarnContext(ctx, "job queue closed")

				return
			}

			job, err := svc.claim(ctx, id)
			if err != nil {
				log.InfoContext(ctx, "skipping queued job", slog.String("job_id", id), slog.Any("error", err))

				continue
			}

			if err := svc.processJob(ctx, job, nil); err != nil {
				log.ErrorContext(ctx, "job failed", slog.String("job_id", id), slog.Any("error", err))
			}
		case <-ctx.Done():
			svc.closed.Store(true)
			log.InfoContext(ctx, "got ctx done signal", slog.Any("error", ctx.Err()))

			return
		}
	}
}

// claim moves a queued job out of starting. A job that was cancelled, or already taken
// from an earlier queue entry of the same UUID, is not claimed.
func (svc *job) claim(ctx context.Context, id string) (*entity.Job, error) {
	var status entity.JobStatus

	err := svc.storage.UpdateJob(ctx, id, func(stored *entity.Job) {
		status = stored.Status
		if status == entity.JobStatusStarting {
			stored.Status = entity.JobStatusExtracting
		}
	})
	if err != nil {
		return nil, err
	}

	if status != entity.JobStatusStarting {
		return nil, fmt.Errorf("%w: status %s", errs.ErrJobNotQueued, status)
	}

	job, ok := svc.storage.GetJobByID(ctx, id)
	if !ok {
		return nil, errs.ErrJobNotFound
	}

	return job, nil
}

func (svc *job) processJob(ctx context.Context, job *entity.Job, obs Observer) error {
	log := svc.log.With(slog.String("func", "processJob"), slog.String("job_id", job.UUID))

	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)

	if svc.cfg.Job.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, svc.cfg.Job.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	svc.storage.RegisterCancelFunc(job.UUID, cancel)
	defer svc.storage.UnregisterCancelFunc(job.UUID)

	stop := svc.metrics.JobTimer()
	defer stop()

	emit := func(ev Event) {
		svc.apply(ctx, job, ev)

		if obs != nil {
			obs(ev)
		}
	}

	err := svc.pipeline(jobCtx, job, emit)

	status, msg := svc.outcome(ctx, jobCtx, err)
	svc.finish(ctx, job, status, msg)

	log.InfoContext(ctx, "job done", slog.String("status", string(status)), slog.Any("summary", job.Summary))

	if obs != nil {
		obs(Event{Status: status, Index: -1, Progress: job.Progress, Err: err})
	}

	return err
}

// outcome maps the pipeline error onto the terminal job status.
func (svc *job) outcome(ctx, jobCtx context.Context, err error) (entity.JobStatus, string) {
	switch {
	case err == nil:
		svc.metrics.RecordJobCompleted()

		return entity.JobStatusFinished, ""
	case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		// Cancel already counted the cancellation.
		return entity.JobStatusCancelled, errs.ErrJobCancelled.Error()
	case ctx.Err() != nil:
		svc.metrics.RecordJobCancelled()

		return entity.JobStatusCancelled, "service shutting down"
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		svc.metrics.RecordJobFailed()

		return entity.JobStatusError, fmt.Sprintf("job timed out after %s", svc.cfg.Job.Timeout)
	default:
		svc.metrics.RecordJobFailed()

		return entity.JobStatusError, err.Error()
	}
}

// apply mirrors a pipeline event onto the stored job. Updates for a replaced or
// cancelled job are dropped.
func (svc *job) apply(ctx context.Context, job *entity.Job, ev Event) {
	if ev.Progress > job.Progress {
		job.Progress = ev.Progress
	}

	job.Status = ev.Status

	err := svc.storage.UpdateJob(ctx, job.UUID, func(stored *entity.Job) {
		if !stored.CreatedAt.Equal(job.CreatedAt) || stored.Status == entity.JobStatusCancelled {
			return
		}

		stored.Status = ev.Status
		stored.Progress = max(stored.Progress, ev.Progress)
		stored.CurrentTrack = ev.Track.Title

		if ev.Tracks != nil {
			stored.Tracks = ev.Tracks
			stored.EstimatedSize = job.EstimatedSize
		}

		if stored.Progress > 0 && stored.Progress < 100 {
			stored.EstimatedETA = calc.ETA(int64(stored.Progress), 100, stored.CreatedAt)
		}
	})
	if err != nil {
		svc.log.WarnContext(ctx, "update job", slog.String("job_id", job.UUID), slog.Any("error", err))
	}
}

// finish writes the terminal state. A job cancelled in storage keeps its status.
func (svc *job) finish(ctx context.Context, job *entity.Job, status entity.JobStatus, msg string) {
	if status == entity.JobStatusFinished {
		job.Progress = 100
	}

	job.Status = status
	job.Error = msg

	err := svc.storage.UpdateJob(ctx, job.UUID, func(stored *entity.Job) {
		if !stored.CreatedAt.Equal(job.CreatedAt) {
			return
		}

		if stored.Status != entity.JobStatusCancelled {
			stored.Status = status
			stored.Error = msg
		}

		stored.Progress = max(stored.Progress, job.Progress)
		stored.CurrentTrack = ""
		stored.EstimatedETA = 0
		stored.Tracks = job.Tracks
		stored.Summary = job.Summary
		stored.Archive = job.Archive
		stored.ArchiveReady = job.ArchiveReady
	})
	if err != nil {
		svc.log.WarnContext(ctx, "finish job", slog.String("job_id", job.UUID), slog.Any("error", err))
	}
}

func (svc *job) setFinal(ctx context.Context, job *entity.Job, status entity.JobStatus, msg string) {
	if err := svc.storage.UpdateJobStatus(ctx, job.UUID, status, 0, msg); err != nil {
		svc.log.WarnContext(ctx, "update job status", slog.String("job_id", job.UUID), slog.Any("error", err))
	}
}

func (svc *job) extractContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if svc.cfg.Extract.Timeout > 0 {
		return context.WithTimeout(ctx, svc.cfg.Extract.Timeout)
	}

	return context.WithCancel(ctx)
}

// Cancel cancels a queued or running job.
func (svc *job) Cancel(ctx context.Context, id string) error {
	if err := svc.storage.CancelJob(ctx, id); err != nil {
		return err
	}

	svc.metrics.RecordJobCancelled()

	return nil
}

func (svc *job) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	if id == "" {
		return nil, errs.ErrJobIDEmpty
	}

	job, ok := svc.storage.GetJobByID(ctx, id)
	if !ok {
		return nil, errs.ErrJobNotFound
	}

	return job, nil
}

func (svc *job) GetAll(ctx context.Context) ([]*entity.Job, error) {
	return svc.storage.GetJobs(ctx)
}

// File returns a processed file that is present on disk.
func (svc *job) File(ctx context.Context, id string) (*entity.MediaFile, error) {
	f, err := svc.storage.GetFileByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if f.Status != entity.FileStatusFinished || f.Filename == "" {
		return nil, fmt.Errorf("%w: %s has no output", errs.ErrFileNotFound, id)
	}

	if _, err := os.Stat(f.Filename); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrFileNotFound, err)
	}

	return f, nil
}

// Metadata reads tags and audio properties of a processed file.
func (svc *job) Metadata(ctx context.Context, id string) (tagger.Metadata, error) {
	f, err := svc.File(ctx, id)
	if err != nil {
		return tagger.Metadata{}, err
	}

	return svc.tagger.Read(f.Filename)
}

// Archive returns the ZIP path of a finished zip delivery.
func (svc *job) Archive(ctx context.Context, id string) (string, error) {
	job, err := svc.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if job.Request.Delivery != entity.DeliveryZIP {
		return "", errs.ErrNoArchive
	}

	if !job.ArchiveReady || job.Archive == "" {
		return "", fmt.Errorf("%w: status %s", errs.ErrJobNotFinished, job.Status)
	}

	return job.Archive, nil
}

// History returns recent entries and totals.
func (svc *job) History(ctx context.Context, limit int) ([]history.Entry, history.Stats, error) {
	entries, err := svc.history.List(ctx, limit)
	if err != nil {
		return nil, history.Stats{}, err
	}

	stats, err := svc.history.Stats(ctx)
	if err != nil {
		return nil, history.Stats{}, err
	}

	return entries, stats, nil
}
