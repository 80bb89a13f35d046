package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"audiograb/internal/entity"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// PrintSummary writes the batch report for job.
func PrintSummary(w io.Writer, job *entity.Job, elapsed time.Duration) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	fmt.Fprintln(w)

	if job.Summary == nil {
		bad.Fprintf(w, "%s: %s\n", job.Status, job.Error)

		return
	}

	s := job.Summary

	bold.Fprintf(w, "%d/%d tracks done (%.1f%%)", s.Successful, s.Total, s.SuccessRate)
	fmt.Fprintf(w, ", %s in %s\n", humanize.Bytes(uint64(max(s.TotalSize, 0))), elapsed.Round(time.Second))

	for _, f := range job.Files {
		if f.Status == entity.FileStatusFinished {
			ok.Fprint(w, "  ✓ ")
			fmt.Fprintf(w, "%s (%s)\n", filepath.Base(f.Filename), humanize.Bytes(uint64(max(f.Size, 0))))

			continue
		}

		bad.Fprint(w, "  ✗ ")
		fmt.Fprintf(w, "%s: %s\n", f.Title, f.Error)
	}

	if job.ArchiveReady {
		fmt.Fprintf(w, "archive: %s\n", job.Archive)
	}

	if job.Status != entity.JobStatusFinished {
		bad.Fprintf(w, "%s: %s\n", job.Status, job.Error)
	}
}
