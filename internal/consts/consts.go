// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultHandlerTimeout is the default timeout for HTTP handlers.
	DefaultHandlerTimeout = 60 * time.Second
	// DefaultJobTimeout is the default timeout for job processing.
	DefaultJobTimeout = 2 * time.Hour
	// DefaultJobWorkers is the default number of workers for job processing.
	DefaultJobWorkers = 2
	// DefaultQueueSize is the default size of the job queue.
	DefaultQueueSize = 50
	// DefaultSimulateTime is the default time to simulate processing in mock downloader.
	DefaultSimulateTime = 100 * time.Millisecond
	// DefaultJobTTL is the default time-to-live for stored jobs and files.
	DefaultJobTTL = 24 * time.Hour
	// EstimatedTrackSize is the per-track size guess used before anything is downloaded.
	EstimatedTrackSize int64 = 5 * 1024 * 1024
)

// Request defaults.
const (
	// DefaultFormat is used when a request names no format.
	DefaultFormat = "mp3"
	// DefaultQuality is used when a request names no bitrate, in kbps.
	DefaultQuality = 192
)

// HTTP response messages.
const (
	// RespInvalidRequestBody is returned when the request body is invalid.
	RespInvalidRequestBody = "invalid request body"
	// RespQueryParamMissing is returned when a required query parameter is missing or invalid.
	RespQueryParamMissing = "query param missing or invalid"
	// RespUnprocessableEntity is returned when the request cannot be processed.
	RespUnprocessableEntity = "unprocessable entity"
	// RespPreviewReady is returned with extracted tracks.
	RespPreviewReady = "preview ready"
	// RespPreviewFail is returned when extraction fails.
	RespPreviewFail = "preview failed"
	// RespNoTracks is returned when extraction found nothing.
	RespNoTracks = "no videos found"
	// RespJobEnqueued is returned when a job is successfully enqueued.
	RespJobEnqueued = "job enqueued"
	// RespJobEnqueueFail is returned when a job cannot be enqueued.
	RespJobEnqueueFail = "job enqueue failed"
	// RespQueueFull is returned when the job queue cannot take more work.
	RespQueueFull = "job queue is full"
	// RespGetJobsFail is returned when fetching all jobs fails.
	RespGetJobsFail = "get all jobs failed"
	// RespGetJobFail is returned when fetching a specific job fails.
	RespGetJobFail = "get job failed"
	// RespNoJobs is returned when there are no jobs available.
	RespNoJobs = "no jobs"
	// RespJobRetrieved is returned when a job is successfully retrieved.
	RespJobRetrieved = "job retrieved"
	// RespJobsRetrieved is returned when jobs are successfully retrieved.
	RespJobsRetrieved = "jobs retrieved"
	// RespJobNotFound is returned when a job is not found.
	RespJobNotFound = "job not found"
	// RespJobAlreadyExists is returned when a job already exists.
	RespJobAlreadyExists = "job already exists"
	// RespJobCancelled is returned when a cancel request succeeds.
	RespJobCancelled = "job cancelled"
	// RespJobCancelFail is returned when a job cannot be cancelled.
	RespJobCancelFail = "job cancel failed"
	// RespArchiveNotReady is returned when a ZIP is requested for an unfinished or non-zip job.
	RespArchiveNotReady = "archive not available"
	// RespFileNotFound is returned when a file is not found.
	RespFileNotFound = "file not found"
	// RespMetadataRetrieved is returned with audio file metadata.
	RespMetadataRetrieved = "metadata retrieved"
	// RespMetadataFail is returned when metadata cannot be read.
	RespMetadataFail = "metadata read failed"
	// RespHistoryRetrieved is returned with history rows.
	RespHistoryRetrieved = "history retrieved"
	// RespHistoryFail is returned when history cannot be read.
	RespHistoryFail = "history read failed"
	// RespHistoryDisabled is returned when no history database is configured.
	RespHistoryDisabled = "history disabled"
)

// Engine identifiers.
const (
	// EngineYTdlp is the yt-dlp engine identifier.
	EngineYTdlp = "ytdlp"
	// EngineNative is the pure Go engine identifier.
	EngineNative = "native"
	// EngineMock is the mock engine identifier for testing.
	EngineMock = "mock"
)
