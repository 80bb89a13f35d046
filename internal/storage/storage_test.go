package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/storage"
	"audiograb/pkg/gen"
	"audiograb/pkg/logger"
)

func newStorer(t *testing.T) storage.Storer {
	t.Helper()

	cfg := &config.Config{Storage: config.Storage{CleanupInterval: time.Minute}}

	return storage.New(t.Context(), logger.Discard(), cfg, nil)
}

func TestGetJob(t *testing.T) {
	ctx := t.Context()
	storer := newStorer(t)

	if _, err := storer.GetJobs(ctx); !errors.Is(err, errs.ErrNoJobs) {
		t.Fatalf("GetJobs on empty storage = %v, want ErrNoJobs", err)
	}

	now := time.Now()
	older := &entity.Job{UUID: gen.UUIDv5("a", "b"), CreatedAt: now.Add(-time.Minute)}
	newer := &entity.Job{UUID: gen.UUIDv5("c", "d"), CreatedAt: now}

	for _, job := range []*entity.Job{older, newer} {
		if err := storer.SetJob(ctx, job); err != nil {
			t.Fatalf("SetJob: %v", err)
		}
	}

	job, ok := storer.GetJobByID(ctx, older.UUID)
	if !ok || job.UUID != older.UUID {
		t.Fatalf("GetJobByID = %v, %v", job, ok)
	}

	if _, ok := storer.GetJobByID(ctx, "missing"); ok {
		t.Error("unexpected job for unknown id")
	}

	jobs, err := storer.GetJobs(ctx)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("GetJobs = %d jobs, %v", len(jobs), err)
	}

	if jobs[0].UUID != newer.UUID {
		t.Error("jobs must be sorted newest first")
	}
}

func TestSetJobErrors(t *testing.T) {
	storer := newStorer(t)

	if err := storer.SetJob(t.Context(), nil); !errors.Is(err, errs.ErrJobNil) {
		t.Errorf("nil job = %v", err)
	}

	if err := storer.SetJob(t.Context(), &entity.Job{}); !errors.Is(err, errs.ErrJobIDEmpty) {
		t.Errorf("empty id = %v", err)
	}
}

func TestJobsAreCopies(t *testing.T) {
	ctx := t.Context()
	storer := newStorer(t)

	job := &entity.Job{UUID: gen.UUIDv5("copy"), Status: entity.JobStatusStarting}
	if err := storer.SetJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Status = entity.JobStatusError

	got, _ := storer.GetJobByID(ctx, job.UUID)
	got.Tracks = append(got.Tracks, entity.Track{ID: "x"})

	again, _ := storer.GetJobByID(ctx, job.UUID)
	if again.Status != entity.JobStatusStarting || len(again.Tracks) != 0 {
		t.Errorf("stored job changed through a copy: %+v", again)
	}

	err := storer.UpdateJob(ctx, job.UUID, func(j *entity.Job) { j.CurrentTrack = "now" })
	if err != nil {
		t.Fatal(err)
	}

	if again, _ = storer.GetJobByID(ctx, job.UUID); again.CurrentTrack != "now" {
		t.Error("UpdateJob did not apply")
	}

	if err := storer.UpdateJob(ctx, "missing", func(*entity.Job) {}); !errors.Is(err, errs.ErrJobNotFound) {
		t.Errorf("UpdateJob missing = %v", err)
	}
}

func TestUpdateJobStatus(t *testing.T) {
	storer := newStorer(t)

	tests := []struct {
		name         string
		initial      entity.JobStatus
		status       entity.JobStatus
		progress     int
		errorMsg     string
		wantStatus   entity.JobStatus
		wantProgress int
	}{
		{
			name:         "update job status",
			initial:      entity.JobStatusStarting,
			status:       entity.JobStatusFinished,
			progress:     100,
			wantStatus:   entity.JobStatusFinished,
			wantProgress: 100,
		},
		{
			name:         "progress is capped",
			initial:      entity.JobStatusDownloading,
			status:       entity.JobStatusDownloading,
			progress:     140,
			wantStatus:   entity.JobStatusDownloading,
			wantProgress: 100,
		},
		{
			name:         "error message kept",
			initial:      entity.JobStatusDownloading,
			status:       entity.JobStatusError,
			errorMsg:     "boom",
			wantStatus:   entity.JobStatusError,
			wantProgress: 0,
		},
		{
			name:         "cancelled stays cancelled",
			initial:      entity.JobStatusCancelled,
			status:       entity.JobStatusFinished,
			progress:     100,
			wantStatus:   entity.JobStatusCancelled,
			wantProgress: 0,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := t.Context()
			id := gen.UUIDv5("status", string(rune('a'+i)))

			if err := storer.SetJob(ctx, &entity.Job{UUID: id, Status: tt.initial, CreatedAt: time.Now()}); err != nil {
				t.Fatal(err)
			}

			if err := storer.UpdateJobStatus(ctx, id, tt.status, tt.progress, tt.errorMsg); err != nil {
				t.Fatalf("UpdateJobStatus: %v", err)
			}

			job, _ := storer.GetJobByID(ctx, id)

			if job.Status != tt.wantStatus {
				t.Errorf("expected job status to be %v, got %v", tt.wantStatus, job.Status)
			}

			if job.Progress != tt.wantProgress {
				t.Errorf("expected job progress to be %d, got %d", tt.wantProgress, job.Progress)
			}

			if job.Error != tt.errorMsg {
				t.Errorf("expected job error message to be %q, got %q", tt.errorMsg, job.Error)
			}
		})
	}

	if err := storer.UpdateJobStatus(t.Context(), "missing", entity.JobStatusError, 0, ""); !errors.Is(err, errs.ErrJobNotFound) {
		t.Errorf("missing job = %v", err)
	}
}

func TestSetGetFile(t *testing.T) {
	storer := newStorer(t)
	ctx := t.Context()
	jobID := gen.UUIDv5("a", "b")

	if err := storer.SetJob(ctx, &entity.Job{UUID: jobID}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		jobID   string
		file    *entity.MediaFile
		wantErr error
	}{
		{name: "nil file", jobID: jobID, file: nil, wantErr: errs.ErrFileNil},
		{name: "no uuid", jobID: jobID, file: &entity.MediaFile{}, wantErr: errs.ErrFileUUID},
		{name: "no job id", jobID: "", file: &entity.MediaFile{UUID: "f"}, wantErr: errs.ErrJobIDEmpty},
		{name: "job does not exist", jobID: "nope", file: &entity.MediaFile{UUID: "f"}, wantErr: errs.ErrJobNotFound},
		{name: "job exists", jobID: jobID, file: &entity.MediaFile{UUID: gen.UUIDv5("c", "d"), Title: "one"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storer.SetFile(ctx, tt.jobID, tt.file)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetFile = %v, want %v", err, tt.wantErr)
			}

			if tt.wantErr != nil {
				return
			}

			got, err := storer.GetFileByID(ctx, tt.file.UUID)
			if err != nil {
				t.Fatalf("GetFileByID: %v", err)
			}

			if got.Title != "one" || got.JobUUID != jobID {
				t.Errorf("file = %+v", got)
			}
		})
	}

	// same UUID replaces instead of appending
	if err := storer.SetFile(ctx, jobID, &entity.MediaFile{UUID: gen.UUIDv5("c", "d"), Title: "two"}); err != nil {
		t.Fatal(err)
	}

	job, _ := storer.GetJobByID(ctx, jobID)
	if len(job.Files) != 1 || job.Files[0].Title != "two" {
		t.Errorf("job files = %+v", job.Files)
	}

	if _, err := storer.GetFileByID(ctx, "missing"); !errors.Is(err, errs.ErrFileNotFound) {
		t.Errorf("missing file = %v", err)
	}
}

func TestCancelJob(t *testing.T) {
	storer := newStorer(t)
	ctx := t.Context()

	running := gen.UUIDv5("running")
	queued := gen.UUIDv5("queued")
	done := gen.UUIDv5("done")

	for id, status := range map[string]entity.JobStatus{
		running: entity.JobStatusDownloading,
		queued:  entity.JobStatusStarting,
		done:    entity.JobStatusFinished,
	} {
		if err := storer.SetJob(ctx, &entity.Job{UUID: id, Status: status}); err != nil {
			t.Fatal(err)
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	storer.RegisterCancelFunc(running, cancel)

	if err := storer.CancelJob(ctx, running); err != nil {
		t.Fatalf("cancel running: %v", err)
	}

	if jobCtx.Err() == nil {
		t.Error("job context must be cancelled")
	}

	if err := storer.CancelJob(ctx, queued); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}

	for _, id := range []string{running, queued} {
		if job, _ := storer.GetJobByID(ctx, id); job.Status != entity.JobStatusCancelled {
			t.Errorf("job %s status = %s", id, job.Status)
		}
	}

	if err := storer.CancelJob(ctx, done); !errors.Is(err, errs.ErrJobNotCancellable) {
		t.Errorf("cancel finished = %v, want ErrJobNotCancellable", err)
	}

	if err := storer.CancelJob(ctx, "missing"); !errors.Is(err, errs.ErrJobNotFound) {
		t.Errorf("cancel missing = %v, want ErrJobNotFound", err)
	}

	storer.UnregisterCancelFunc(running)
}
