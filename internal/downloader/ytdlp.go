package downloader

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"audiograb/internal/config"
	"audiograb/internal/consts"
	"audiograb/internal/depmanager"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/observability"

	"github.com/avast/retry-go/v4"
	"github.com/lrstanley/go-ytdlp"
)

const (
	audioFormat = "bestaudio/best"

	// changing this may break parseFilepath().
	printAfterMove = "after_move:filepath"
)

var reFilepath = regexp.MustCompile(`(?i)^[^\{\[\n].*\.[a-z0-9]{1,6}$`)

// runFunc executes a prepared yt-dlp command.
type runFunc func(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error)

func runCommand(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error) {
	return cmd.Run(ctx, url)
}

// YTdlp downloads audio streams with yt-dlp.
type YTdlp struct {
	log  *slog.Logger
	cfg  config.Download
	dir  config.Dir
	deps Deps
	run  runFunc
}

// NewYTdlp creates a new YTdlp downloader instance.
func NewYTdlp(log *slog.Logger, cfg config.Download, dir config.Dir, deps Deps) *YTdlp {
	if deps.Bins == nil {
		deps.Bins = depmanager.Static{}
	}

	return &YTdlp{
		log:  log.With(slog.String("package", "downloader"), slog.String("downloader", consts.EngineYTdlp)),
		cfg:  cfg,
		dir:  dir,
		deps: deps,
		run:  runCommand,
	}
}

// Download implements Downloader. Failed attempts are retried with exponential backoff
// unless the context is done.
func (d *YTdlp) Download(ctx context.Context, track entity.Track, dir, basename string, progress ProgressFunc) (string, error) {
	log := d.log.With(slog.Any("track", track))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	path, err := retry.DoWithData(
		func() (string, error) {
			return d.attempt(ctx, track, dir, basename, progress)
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(d.cfg.Retries, 1))),
		retry.Delay(d.cfg.RetryDelay),
		retry.MaxDelay(d.cfg.RetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			d.deps.Metrics.RecordDownloaderRetry()
			log.WarnContext(ctx, "download attempt failed, retrying",
				slog.Uint64("attempt", uint64(n+1)),
				slog.Any("error", err))
		}),
	)
	if err != nil {
		d.deps.Metrics.RecordDownloaderRequest(consts.EngineYTdlp, observability.StatusFailed)
		d.deps.Metrics.RecordDownloaderError(consts.EngineYTdlp, classifyError(err))

		return "", fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}

	d.deps.Metrics.RecordDownloaderRequest(consts.EngineYTdlp, observability.StatusSuccess)
	report(progress, Progress{Percent: fullProgress})

	log.InfoContext(ctx, "downloaded", slog.String("path", path))

	return path, nil
}

func (d *YTdlp) attempt(ctx context.Context, track entity.Track, dir, basename string, progress ProgressFunc) (string, error) {
	log := d.log.With(slog.String("url", track.URL))

	proxy, err := d.deps.Proxies.Acquire()
	if err != nil {
		log.WarnContext(ctx, "no healthy proxy, downloading directly", slog.Any("error", err))
	}

	progressFn := func(u ytdlp.ProgressUpdate) {
		log.DebugContext(ctx, "ytdlp progress", slog.Any("progress_update", ProgressUpdate{&u}))
		report(progress, toProgress(u))
	}

	cmd := d.command(dir, basename, progressFn)
	if proxy != "" {
		cmd = cmd.Proxy(proxy)
	}

	res, err := d.run(ctx, cmd, track.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		d.deps.Proxies.MarkFailed(proxy)
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", Result{res}))

		return "", fmt.Errorf("ytdlp run: %w", err)
	}

	d.deps.Proxies.MarkSuccess(proxy)

	var stdout string
	if res != nil {
		stdout = res.Stdout
	}

	return locateOutput(stdout, dir, basename)
}

func (d *YTdlp) command(dir, basename string, progressFn func(ytdlp.ProgressUpdate)) *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(d.deps.Bins.Path(depmanager.BinaryYTdlp)).
		Format(audioFormat).
		NoPart().
		NoPlaylist().
		NoWarnings().
		CacheDir(d.dir.Cache).
		FragmentRetries(strconv.Itoa(d.cfg.FragmentRetries)).
		Print(printAfterMove).
		Output(filepath.Join(dir, escapeTemplate(basename)+".%(ext)s"))

	if d.cfg.ProgressInterval > 0 {
		cmd = cmd.ProgressFunc(d.cfg.ProgressInterval, progressFn)
	}

	if d.dir.CookieFile != "" {
		cmd = cmd.Cookies(d.dir.CookieFile)
	}

	return cmd
}

// locateOutput finds the downloaded file from the printed filepath, falling back
// to a glob over dir for basename.*.
func locateOutput(stdout, dir, basename string) (string, error) {
	if path := parseFilepath(stdout); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, globEscape(basename)+".*"))
	if err == nil {
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				return m, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s", errs.ErrOutputMissing, basename)
}

// parseFilepath returns the last stdout line that looks like a file path.
func parseFilepath(stdout string) string {
	var path string

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if reFilepath.MatchString(line) {
			path = line
		}
	}

	return path
}

// escapeTemplate protects literal percent signs from yt-dlp's output template expansion.
func escapeTemplate(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)

	return r.Replace(s)
}
