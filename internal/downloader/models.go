package downloader

import (
	"fmt"
	"log/slog"
	"strings"

	"audiograb/pkg/calc"

	"github.com/lrstanley/go-ytdlp"
)

// Result wraps ytdlp.Result for custom logging.
type Result struct {
	*ytdlp.Result
}

// LogValue implements the slog.LogValuer interface for custom logging of Result.
func (r Result) LogValue() slog.Value {
	if r.Result == nil {
		return slog.GroupValue(slog.String("error", "nil result"))
	}

	var logs strings.Builder

	for _, l := range r.OutputLogs {
		fmt.Fprintf(&logs, "%v\n", l)
	}

	return slog.GroupValue(
		slog.String("executable", r.Executable),
		slog.String("args", strings.Join(r.Args, " ")),
		slog.String("stdout", r.Stdout),
		slog.String("stderr", r.Stderr),
		slog.String("output_logs", logs.String()),
	)
}

// ProgressUpdate wraps ytdlp.ProgressUpdate for custom logging.
type ProgressUpdate struct {
	*ytdlp.ProgressUpdate
}

// LogValue implements the slog.LogValuer interface for custom logging of ProgressUpdate.
func (p ProgressUpdate) LogValue() slog.Value {
	if p.ProgressUpdate == nil {
		return slog.GroupValue(slog.String("error", "nil progress update"))
	}

	return slog.GroupValue(
		slog.String("filename", p.Filename),
		slog.String("status", fmt.Sprint(p.Status)),
		slog.Int("downloaded_bytes", p.DownloadedBytes),
		slog.Int("total_bytes", p.TotalBytes),
		slog.Int("fragment_index", p.FragmentIndex),
		slog.Int("fragment_count", p.FragmentCount),
		slog.Int("progress", toProgress(*p.ProgressUpdate).Percent),
	)
}

// toProgress converts a yt-dlp update. Fragmented streams without a byte total
// fall back to fragment counts.
func toProgress(u ytdlp.ProgressUpdate) Progress {
	done, total := int64(u.DownloadedBytes), int64(u.TotalBytes)

	p := Progress{Downloaded: done, Total: total}

	switch {
	case total > 0:
		p.Percent = calc.Progress(done, total)
		p.ETA = calc.ETA(done, total, u.Started)
	case u.FragmentCount > 0:
		p.Percent = calc.Progress(int64(u.FragmentIndex), int64(u.FragmentCount))
	}

	p.Percent = min(max(p.Percent, 0), fullProgress)

	return p
}
