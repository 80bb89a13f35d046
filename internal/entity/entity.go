// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
	"time"
)

// JobStatus represents the status of a download job.
type JobStatus string

const (
	// JobStatusStarting indicates that the job is accepted and is about to start.
	JobStatusStarting JobStatus = "starting"
	// JobStatusExtracting indicates that the URL is being resolved into tracks.
	JobStatusExtracting JobStatus = "extracting"
	// JobStatusDownloading indicates that a track's audio is being fetched.
	JobStatusDownloading JobStatus = "downloading"
	// JobStatusTranscoding indicates that a track is being converted.
	JobStatusTranscoding JobStatus = "transcoding"
	// JobStatusTagging indicates that a track's tags are being written.
	JobStatusTagging JobStatus = "tagging"
	// JobStatusError indicates that the job has encountered an error.
	JobStatusError JobStatus = "error"
	// JobStatusFinished indicates that the job has finished successfully.
	JobStatusFinished JobStatus = "finished"
	// JobStatusCancelled indicates that the job was cancelled by the user.
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusError || s == JobStatusCancelled
}

// Job represents a batch download of one URL with one set of options.
type Job struct {
	UUID          string        `json:"uuid"`
	Request       Request       `json:"request"`
	Status        JobStatus     `json:"status"`
	Progress      int           `json:"progress"`
	CurrentTrack  string        `json:"currentTrack,omitempty"`
	Tracks        []Track       `json:"tracks,omitempty"`
	Files         []MediaFile   `json:"files,omitempty"`
	Summary       *Summary      `json:"summary,omitempty"`
	Archive       string        `json:"-"`
	ArchiveReady  bool          `json:"archiveReady,omitempty"`
	Dir           string        `json:"-"`
	TempDir       bool          `json:"-"`
	Error         string        `json:"error,omitempty"`
	EstimatedETA  time.Duration `json:"estimatedEta"`
	EstimatedSize int64         `json:"estimatedSize,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (j Job) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("uuid", j.UUID),
		slog.String("url", j.Request.URL),
		slog.String("format", string(j.Request.Format)),
		slog.Int("quality", j.Request.Quality),
		slog.String("status", string(j.Status)),
		slog.Int("progress", j.Progress),
		slog.Int("tracks", len(j.Tracks)),
		slog.Int("files", len(j.Files)),
		slog.Duration("estimatedEta", j.EstimatedETA),
		slog.Int64("estimatedSize", j.EstimatedSize),
	)
}
