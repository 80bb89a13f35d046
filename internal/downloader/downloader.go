// Package downloader fetches the best available audio stream of a track.
package downloader

import (
	"context"
	"errors"
	"time"

	"audiograb/internal/depmanager"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/observability"
	"audiograb/internal/proxymgr"
)

const fullProgress = 100

// Progress is a download progress snapshot.
type Progress struct {
	Percent    int
	Downloaded int64
	Total      int64
	ETA        time.Duration
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Downloader fetches a track's audio into dir as basename.<ext> and returns the file path.
type Downloader interface {
	Download(ctx context.Context, track entity.Track, dir, basename string, progress ProgressFunc) (string, error)
}

// Deps are the collaborators downloaders may use.
type Deps struct {
	Bins    depmanager.Resolver
	Proxies *proxymgr.Manager
	Metrics *observability.Metrics
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errs.ErrOutputMissing):
		return "output"
	default:
		return "process"
	}
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, errs.ErrOutputMissing)
}

func report(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}
