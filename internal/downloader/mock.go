package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"audiograb/internal/consts"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
)

const mockSteps = 10

// Mock simulates downloads by writing a small placeholder file.
type Mock struct {
	log *slog.Logger
	// Duration is how long one simulated download takes.
	Duration time.Duration
	// Fail maps track IDs to the error their download returns.
	Fail map[string]error
}

// NewMock creates a mock downloader.
func NewMock(log *slog.Logger) *Mock {
	return &Mock{
		log:      log.With(slog.String("package", "downloader"), slog.String("downloader", consts.EngineMock)),
		Duration: consts.DefaultSimulateTime,
	}
}

// Download implements Downloader.
func (m *Mock) Download(ctx context.Context, track entity.Track, dir, basename string, progress ProgressFunc) (string, error) {
	if err := m.Fail[track.ID]; err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}

	if err := simulate(ctx, m.Duration, progress); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	path := filepath.Join(dir, basename+".webm")
	if err := os.WriteFile(path, []byte("mock audio "+track.ID), 0o644); err != nil {
		return "", fmt.Errorf("write mock file: %w", err)
	}

	m.log.DebugContext(ctx, "mock download done", slog.Any("track", track), slog.String("path", path))

	return path, nil
}

func simulate(ctx context.Context, duration time.Duration, progress ProgressFunc) error {
	if duration <= 0 {
		report(progress, Progress{Percent: fullProgress})

		return ctx.Err()
	}

	ticker := time.NewTicker(duration / mockSteps)
	defer ticker.Stop()

	start := time.Now()

	for step := 1; step <= mockSteps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report(progress, Progress{
				Percent: step * (fullProgress / mockSteps),
				ETA:     max(duration-time.Since(start), 0),
			})
		}
	}

	return nil
}
