package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audiograb/internal/entity"
	"audiograb/internal/service"
	"audiograb/pkg/filename"
)

// Fetch runs cmd synchronously through svc, rendering progress and the summary to out.
// With --zip the archive ends up in the output directory and the scratch job dir is removed.
func Fetch(ctx context.Context, svc service.Job, cmd *FetchCmd, out io.Writer, tty bool) (*entity.Job, error) {
	req, err := cmd.Request()
	if err != nil {
		return nil, err
	}

	outDir, err := filepath.Abs(cmd.Output)
	if err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	progress := NewProgress(out, tty)
	start := time.Now()

	job, runErr := svc.Run(ctx, req, progress.Observe)

	progress.Wait()

	if job == nil {
		return nil, runErr
	}

	if cmd.Zip && job.ArchiveReady {
		dst, err := moveArchive(job.Archive, outDir)
		if err != nil {
			return job, errors.Join(runErr, err)
		}

		job.Archive = dst

		if job.TempDir {
			_ = os.RemoveAll(job.Dir)
		}
	}

	PrintSummary(out, job, time.Since(start))

	return job, runErr
}

// moveArchive moves src into dir under a name that does not clash with existing files.
func moveArchive(src, dir string) (string, error) {
	ext := filepath.Ext(src)

	dst, err := filename.Unique(dir, strings.TrimSuffix(filepath.Base(src), ext), ext)
	if err != nil {
		return "", fmt.Errorf("archive name: %w", err)
	}

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}

	// Rename fails across file systems.
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("move archive: %w", err)
	}

	_ = os.Remove(src)

	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)

		return err
	}

	return out.Close()
}
