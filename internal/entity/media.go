package entity

import (
	"log/slog"
	"time"
)

// FileStatus is the outcome of processing one track.
type FileStatus string

// File statuses.
const (
	FileStatusFinished FileStatus = "finished"
	FileStatusError    FileStatus = "error"
)

// MediaFile is a processed track on disk.
type MediaFile struct {
	UUID       string     `json:"uuid"`
	JobUUID    string     `json:"jobUuid"`
	TrackID    string     `json:"trackId"`
	TrackIndex int        `json:"trackIndex"`
	Title      string     `json:"title"`
	Filename   string     `json:"filename,omitempty"` // absolute path
	Format     Format     `json:"format"`
	Bitrate    int        `json:"bitrate,omitempty"` // kbps, 0 for lossless
	Size       int64      `json:"size,omitempty"`
	Duration   int        `json:"duration,omitempty"`
	SHA256     string     `json:"sha256,omitempty"`
	Status     FileStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (f MediaFile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("uuid", f.UUID),
		slog.String("trackId", f.TrackID),
		slog.String("title", f.Title),
		slog.String("filename", f.Filename),
		slog.String("format", string(f.Format)),
		slog.Int64("size", f.Size),
		slog.String("status", string(f.Status)),
		slog.String("error", f.Error),
	)
}
