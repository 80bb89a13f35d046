package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"audiograb/internal/downloader"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/history"
	"audiograb/internal/observability"
	"audiograb/internal/storage"
	"audiograb/internal/tagger"
	"audiograb/internal/transcoder"
	"audiograb/pkg/calc"
	"audiograb/pkg/filename"
	"audiograb/pkg/gen"
)

// Share of one track's progress spent in each stage; tagging takes the rest.
const (
	downloadShare  = 70
	transcodeShare = 25
)

// Event is one pipeline update.
type Event struct {
	Status entity.JobStatus
	// Index is the zero-based position of Track in the selection, -1 for job level events.
	Index int
	Track entity.Track
	// Percent is the progress of the current track, Progress that of the batch.
	Percent  int
	Progress int
	// Tracks is set once extraction and selection are done.
	Tracks []entity.Track
	// File is set when a track is done, successfully or not.
	File *entity.MediaFile
	Err  error
}

// Observer receives pipeline events in order.
type Observer func(Event)

// Select returns the tracks at the given zero-based indexes. Empty sel selects all.
func Select(tracks []entity.Track, sel []int) ([]entity.Track, error) {
	if len(sel) == 0 {
		return tracks, nil
	}

	out := make([]entity.Track, 0, len(sel))

	for _, idx := range sel {
		if idx < 0 || idx >= len(tracks) {
			return nil, fmt.Errorf("%w: index %d of %d tracks", errs.ErrInvalidSelection, idx, len(tracks))
		}

		out = append(out, tracks[idx])
	}

	return out, nil
}

// pipeline runs extraction and then every selected track. A failed track is recorded and
// the batch continues.
func (svc *job) pipeline(ctx context.Context, job *entity.Job, emit Observer) error {
	req := job.Request

	emit(Event{Status: entity.JobStatusExtracting, Index: -1})

	extractCtx, cancel := svc.extractContext(ctx)
	res, err := svc.extractor.Extract(extractCtx, req.URL)

	cancel()

	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	tracks, err := Select(res.Tracks, req.Select)
	if err != nil {
		return err
	}

	job.Tracks = tracks
	job.EstimatedSize = entity.NewEstimate(tracks).EstimatedSize

	emit(Event{Status: entity.JobStatusDownloading, Index: -1, Tracks: tracks})

	if err := os.MkdirAll(job.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	workDir := filepath.Join(svc.cfg.Dir.Downloads, job.UUID, workDirName)

	scratch := workDir
	if !job.TempDir {
		scratch = filepath.Dir(workDir)
	}
	defer os.RemoveAll(scratch)

	titles := make([]string, len(tracks))
	for i, t := range tracks {
		titles[i] = t.Title
	}

	names := filename.Titles(titles, req.Naming, req.Prefix)

	for i, track := range tracks {
		if ctx.Err() != nil {
			break
		}

		file, err := svc.processTrack(ctx, job, i, track, names[i], workDir, emit)
		if err != nil && ctx.Err() != nil {
			break
		}

		job.Files = append(job.Files, file)
		svc.storeFile(ctx, job, &file)
		svc.record(ctx, job, track, file)

		emit(Event{
			Status:   entity.JobStatusDownloading,
			Index:    i,
			Track:    track,
			Percent:  100,
			Progress: calc.BatchProgress(i, len(tracks), 100),
			File:     &file,
			Err:      err,
		})
	}

	summary := entity.NewSummary(job.Files)
	job.Summary = &summary

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job interrupted: %w", err)
	}

	if summary.Successful == 0 {
		return fmt.Errorf("%w: %d of %d", errs.ErrAllTracksFailed, summary.Failed, summary.Total)
	}

	if req.Delivery == entity.DeliveryZIP {
		if err := svc.archive(ctx, job, res.Title); err != nil {
			return err
		}
	}

	return nil
}

// processTrack downloads, transcodes and tags one track. The returned file carries the
// outcome; err is set for a failed track.
func (svc *job) processTrack(ctx context.Context,
	job *entity.Job,
	i int,
	track entity.Track,
	name, workDir string,
	emit Observer) (entity.MediaFile, error) {
	req := job.Request
	log := svc.log.With(slog.String("job_id", job.UUID), slog.Any("track", track))

	file := entity.MediaFile{
		UUID:       gen.UUID(),
		JobUUID:    job.UUID,
		TrackID:    track.ID,
		TrackIndex: track.Index,
		Title:      track.Title,
		Format:     req.Format,
		Bitrate:    req.Quality,
		Duration:   track.Duration,
		Status:     entity.FileStatusError,
		CreatedAt:  time.Now(),
	}

	progress := func(status entity.JobStatus, pct int) {
		emit(Event{
			Status:   status,
			Index:    i,
			Track:    track,
			Percent:  pct,
			Progress: calc.BatchProgress(i, len(job.Tracks), pct),
		})
	}

	fail := func(stage string, err error) (entity.MediaFile, error) {
		err = fmt.Errorf("%s: %w", stage, err)
		file.Error = err.Error()

		svc.metrics.RecordTrack(observability.StatusFailed, 0)
		log.WarnContext(ctx, "track failed", slog.Any("error", err))

		return file, err
	}

	progress(entity.JobStatusDownloading, 0)

	stop := svc.metrics.StageTimer(observability.StageDownload)
	src, err := svc.downloader.Download(ctx, track, workDir, fmt.Sprintf("%04d_%s", i+1, filename.Sanitize(track.ID)),
		func(p downloader.Progress) {
			progress(entity.JobStatusDownloading, p.Percent*downloadShare/100)
		})

	stop()

	if err != nil {
		return fail("download", err)
	}

	defer os.Remove(src)

	out, err := filename.Unique(job.Dir, name, transcoder.Ext(req.Format))
	if err != nil {
		return fail("name", err)
	}

	progress(entity.JobStatusTranscoding, downloadShare)

	stop = svc.metrics.StageTimer(observability.StageTranscode)
	out, err = svc.transcoder.Transcode(ctx, transcoder.Params{
		Input:   src,
		Output:  out,
		Format:  req.Format,
		Quality: req.Quality,
	}, func(pct int) {
		progress(entity.JobStatusTranscoding, downloadShare+pct*transcodeShare/100)
	})

	stop()

	if err != nil {
		return fail("transcode", err)
	}

	progress(entity.JobStatusTagging, downloadShare+transcodeShare)

	stop = svc.metrics.StageTimer(observability.StageTag)

	// The audio is usable without tags, so a tagging error is only logged.
	if err := svc.tagger.Write(out, tagger.TagsFor(track)); err != nil {
		log.WarnContext(ctx, "tagging failed", slog.String("path", out), slog.Any("error", err))
	}

	stop()

	info, err := os.Stat(out)
	if err != nil {
		return fail("stat output", err)
	}

	sum, err := storage.Checksum(out, storage.HashSHA256)
	if err != nil {
		log.WarnContext(ctx, "checksum failed", slog.String("path", out), slog.Any("error", err))
	}

	file.Filename = out
	file.Size = info.Size()
	file.SHA256 = sum
	file.Status = entity.FileStatusFinished

	svc.metrics.RecordTrack(observability.StatusSuccess, file.Size)
	log.InfoContext(ctx, "track done", slog.Any("file", file))

	return file, nil
}

// storeFile attaches file to the stored job unless the job was replaced meanwhile.
func (svc *job) storeFile(ctx context.Context, job *entity.Job, file *entity.MediaFile) {
	stored, ok := svc.storage.GetJobByID(ctx, job.UUID)
	if !ok || !stored.CreatedAt.Equal(job.CreatedAt) {
		return
	}

	if err := svc.storage.SetFile(ctx, job.UUID, file); err != nil {
		svc.log.WarnContext(ctx, "store file", slog.String("job_id", job.UUID), slog.Any("error", err))
	}
}

func (svc *job) record(ctx context.Context, job *entity.Job, track entity.Track, file entity.MediaFile) {
	err := svc.history.Record(ctx, history.Entry{
		JobUUID:   job.UUID,
		VideoID:   track.ID,
		URL:       track.URL,
		Title:     track.Title,
		Format:    string(file.Format),
		Quality:   file.Bitrate,
		Filename:  filepath.Base(file.Filename),
		SizeBytes: file.Size,
		Status:    file.Status,
		Error:     file.Error,
	})
	if err != nil {
		svc.log.WarnContext(ctx, "record history", slog.String("job_id", job.UUID), slog.Any("error", err))
	}
}

// archive bundles every finished file into download_<Title>.zip inside the job dir,
// where Title is the cleaned playlist title.
func (svc *job) archive(ctx context.Context, job *entity.Job, title string) error {
	var paths []string

	for _, f := range job.Files {
		if f.Status == entity.FileStatusFinished {
			paths = append(paths, f.Filename)
		}
	}

	if title == "" {
		title = job.UUID[:8]
	}

	dst, err := filename.Unique(job.Dir, filename.WithAffixes(title, archivePrefix, ""), ".zip")
	if err != nil {
		return fmt.Errorf("archive name: %w", err)
	}

	size, err := storage.Archive(ctx, dst, paths)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	job.Archive = dst
	job.ArchiveReady = true

	svc.log.InfoContext(ctx, "archive written",
		slog.String("job_id", job.UUID),
		slog.String("path", dst),
		slog.Int("files", len(paths)),
		slog.Int64("size", size))

	return nil
}
