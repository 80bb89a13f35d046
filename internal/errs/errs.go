// Package errs defines common error variables used across the application.
package errs

import "errors"

var (
	// ErrServiceClosed indicates that the service is closed and cannot accept new jobs.
	ErrServiceClosed = errors.New("service is closed")
	// ErrInvalidRequestBody indicates that the request body is invalid or cannot be parsed.
	ErrInvalidRequestBody = errors.New("invalid request body")
)

// Request validation errors.
var (
	// ErrInvalidURL indicates that the URL is not a recognised YouTube link.
	ErrInvalidURL = errors.New("invalid youtube url")
	// ErrInvalidFormat indicates an audio format outside mp3, m4a, wav, flac, webm.
	ErrInvalidFormat = errors.New("invalid audio format")
	// ErrInvalidQuality indicates a bitrate outside 128, 192, 256, 320.
	ErrInvalidQuality = errors.New("invalid audio quality")
	// ErrInvalidNaming indicates an unknown naming strategy.
	ErrInvalidNaming = errors.New("invalid naming method")
	// ErrInvalidDelivery indicates an unknown delivery method.
	ErrInvalidDelivery = errors.New("invalid delivery method")
	// ErrInvalidFolder indicates a missing, relative or disallowed folder for folder delivery.
	ErrInvalidFolder = errors.New("invalid download folder")
	// ErrInvalidSelection indicates a track index outside the extracted list.
	ErrInvalidSelection = errors.New("invalid track selection")
)

// Job and storage errors.
var (
	// ErrNoJobs indicates that there are no jobs in storage.
	ErrNoJobs = errors.New("no jobs")
	// ErrJobAlreadyExists indicates that an active job exists for the same URL and options.
	ErrJobAlreadyExists = errors.New("job already exists")
	// ErrJobNotFound indicates that the job is not found in storage.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNil indicates that the job is nil.
	ErrJobNil = errors.New("job is nil")
	// ErrJobIDEmpty indicates that the job ID is empty.
	ErrJobIDEmpty = errors.New("job_id is empty")
	// ErrJobCancelled indicates that the job was cancelled.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrJobNotCancellable indicates that the job already reached a terminal status.
	ErrJobNotCancellable = errors.New("job is not cancellable")
	// ErrJobQueueFull indicates that the job queue is full.
	ErrJobQueueFull = errors.New("job queue is full")
	// ErrJobNotFinished indicates that the job has not produced its output yet.
	ErrJobNotFinished = errors.New("job not finished")
	// ErrJobNotQueued indicates that a dequeued job is no longer waiting to start.
	ErrJobNotQueued = errors.New("job is not queued")
	// ErrAllTracksFailed indicates that no track of a job produced a file.
	ErrAllTracksFailed = errors.New("all tracks failed")
	// ErrNoArchive indicates that the job was not requested with zip delivery.
	ErrNoArchive = errors.New("job has no archive")
)

// Media file errors.
var (
	// ErrFileNil indicates that the media file is nil.
	ErrFileNil = errors.New("file is nil")
	// ErrFileUUID indicates that the media file UUID is invalid.
	ErrFileUUID = errors.New("file UUID is invalid")
	// ErrFileNotFound indicates that the media file was not found in storage.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedHash indicates a checksum algorithm other than md5, sha1, sha256.
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")
)

// Extraction errors.
var (
	// ErrWrongKind indicates a link of another kind than the method handles.
	ErrWrongKind = errors.New("url kind does not match")
	// ErrNoTracks indicates that extraction found nothing to download.
	ErrNoTracks = errors.New("no tracks found")
	// ErrUnsupportedKind indicates a link kind the engine cannot resolve.
	ErrUnsupportedKind = errors.New("url kind not supported by engine")
	// ErrExtractFailed indicates that metadata extraction failed.
	ErrExtractFailed = errors.New("extraction failed")
)

// Downloader errors.
var (
	// ErrDownloadFailed indicates that the download failed.
	ErrDownloadFailed = errors.New("download failed")
	// ErrOutputMissing indicates that the tool reported success but no file is on disk.
	ErrOutputMissing = errors.New("output file missing")
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform is not supported.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Transcoder and tagger errors.
var (
	// ErrUnsupportedFormat indicates that there is no codec mapping for a format.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrTranscodeFailed indicates that ffmpeg failed.
	ErrTranscodeFailed = errors.New("transcode failed")
	// ErrProbeFailed indicates that ffprobe failed or returned nothing useful.
	ErrProbeFailed = errors.New("probe failed")
	// ErrTagFailed indicates that writing tags failed.
	ErrTagFailed = errors.New("tagging failed")
)

// Proxy errors.
var (
	// ErrNoProxiesAvailable indicates that no proxies are available.
	ErrNoProxiesAvailable = errors.New("no proxies available")
)

// History errors.
var (
	// ErrHistoryDisabled indicates that no history database is configured.
	ErrHistoryDisabled = errors.New("history disabled")
)
