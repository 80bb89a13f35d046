package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"audiograb/internal/config"
	"audiograb/internal/consts"
	"audiograb/internal/depmanager"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/pkg/maths"
	"audiograb/pkg/ytlink"

	"github.com/lrstanley/go-ytdlp"
)

// runFunc executes a prepared yt-dlp command.
type runFunc func(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error)

func runCommand(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error) {
	return cmd.Run(ctx, url)
}

// YTdlp extracts metadata by running yt-dlp with --dump-single-json.
type YTdlp struct {
	log  *slog.Logger
	cfg  config.Extract
	dir  config.Dir
	deps Deps
	run  runFunc
}

// NewYTdlp creates a yt-dlp backed extractor.
func NewYTdlp(log *slog.Logger, cfg config.Extract, dir config.Dir, deps Deps) *YTdlp {
	if deps.Bins == nil {
		deps.Bins = depmanager.Static{}
	}

	return &YTdlp{
		log:  log.With(slog.String("package", "extractor"), slog.String("engine", consts.EngineYTdlp)),
		cfg:  cfg,
		dir:  dir,
		deps: deps,
		run:  runCommand,
	}
}

// Video implements Extractor.
func (y *YTdlp) Video(ctx context.Context, url string) (*Result, error) {
	if err := expect(url, ytlink.KindVideo); err != nil {
		return nil, err
	}

	return y.extract(ctx, url, ytlink.KindVideo)
}

// Playlist implements Extractor.
func (y *YTdlp) Playlist(ctx context.Context, url string) (*Result, error) {
	if err := expect(url, ytlink.KindPlaylist); err != nil {
		return nil, err
	}

	return y.extract(ctx, url, ytlink.KindPlaylist)
}

// Channel implements Extractor by listing the channel's uploads tab.
func (y *YTdlp) Channel(ctx context.Context, url string) (*Result, error) {
	if err := expect(url, ytlink.KindChannel); err != nil {
		return nil, err
	}

	return y.extract(ctx, channelUploadsURL(url), ytlink.KindChannel)
}

// Extract implements Extractor.
func (y *YTdlp) Extract(ctx context.Context, url string) (*Result, error) {
	return dispatch(ctx, y, url)
}

func (y *YTdlp) extract(ctx context.Context, url string, kind ytlink.Kind) (res *Result, err error) {
	log := y.log.With(slog.String("url", url), slog.String("kind", string(kind)))

	defer func() { y.deps.Metrics.RecordExtraction(consts.EngineYTdlp, string(kind), status(err)) }()

	cmd := y.command(kind)

	proxy, err := y.deps.Proxies.Acquire()
	if err != nil {
		log.WarnContext(ctx, "no healthy proxy, extracting directly", slog.Any("error", err))
	} else if proxy != "" {
		cmd = cmd.Proxy(proxy)
	}

	out, err := y.run(ctx, cmd, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ytdlp extract: %w", ctxErr)
		}

		y.deps.Proxies.MarkFailed(proxy)
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", result{out}))

		return nil, fmt.Errorf("%w: %w", errs.ErrExtractFailed, err)
	}

	y.deps.Proxies.MarkSuccess(proxy)

	res, err = ParseInfo([]byte(out.Stdout), kind)
	if err != nil {
		return nil, err
	}

	res, err = finalize(res, y.limit(kind))
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "extracted", slog.Any("result", res))

	return res, nil
}

func (y *YTdlp) command(kind ytlink.Kind) *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(y.deps.Bins.Path(depmanager.BinaryYTdlp)).
		SkipDownload().
		DumpSingleJSON().
		NoWarnings().
		CacheDir(y.dir.Cache)

	if kind == ytlink.KindVideo {
		cmd = cmd.NoPlaylist()
	} else {
		cmd = cmd.FlatPlaylist().PlaylistItems("1:" + strconv.Itoa(y.limit(kind)))
	}

	if y.dir.CookieFile != "" {
		cmd = cmd.Cookies(y.dir.CookieFile)
	}

	return cmd
}

func (y *YTdlp) limit(kind ytlink.Kind) int {
	if kind == ytlink.KindVideo {
		return 1
	}

	return max(y.cfg.MaxPlaylistVideos, 1)
}

// info is the subset of the yt-dlp info dict this package reads.
// Flat playlist entries carry the same fields with fewer of them set.
type info struct {
	Type        string      `json:"_type"`
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Uploader    string      `json:"uploader"`
	Channel     string      `json:"channel"`
	Duration    float64     `json:"duration"`
	UploadDate  string      `json:"upload_date"`
	ViewCount   float64     `json:"view_count"`
	Thumbnail   string      `json:"thumbnail"`
	Thumbnails  []thumbnail `json:"thumbnails"`
	URL         string      `json:"url"`
	WebpageURL  string      `json:"webpage_url"`
	OriginalURL string      `json:"original_url"`
	Entries     []*info     `json:"entries"`
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ParseInfo maps yt-dlp's single JSON document into a Result.
// Nested playlists (channel tabs) are flattened and entries without an ID are skipped.
func ParseInfo(stdout []byte, kind ytlink.Kind) (*Result, error) {
	var root info

	if err := json.Unmarshal(stdout, &root); err != nil {
		return nil, fmt.Errorf("%w: decode info json: %w", errs.ErrExtractFailed, err)
	}

	res := &Result{Kind: kind}

	if root.Type != "playlist" && len(root.Entries) == 0 {
		if root.ID == "" {
			return nil, errs.ErrNoTracks
		}

		res.Title = root.Title
		res.Tracks = []entity.Track{root.track("")}

		return res, nil
	}

	res.Title = root.Title
	res.Tracks = root.flatten(root.Title, nil)

	if len(res.Tracks) == 0 {
		return nil, errs.ErrNoTracks
	}

	return res, nil
}

func (i *info) flatten(playlistTitle string, acc []entity.Track) []entity.Track {
	for _, e := range i.Entries {
		switch {
		case e == nil:
		case len(e.Entries) > 0:
			acc = e.flatten(playlistTitle, acc)
		case e.ID != "" && !isContainer(e):
			acc = append(acc, e.track(playlistTitle))
		}
	}

	return acc
}

// isContainer reports whether a flat entry points at a channel tab or playlist instead of a video.
func isContainer(e *info) bool {
	if e.Type == "playlist" {
		return true
	}

	return ytlink.IsChannel(e.URL) || ytlink.IsPlaylist(e.URL)
}

func (i *info) track(playlistTitle string) entity.Track {
	uploader := i.Uploader
	if uploader == "" {
		uploader = i.Channel
	}

	link := i.WebpageURL
	if !ytlink.IsHTTPURL(link) {
		link = i.URL
	}

	if !ytlink.IsHTTPURL(link) {
		link = watchURL(i.ID)
	}

	return entity.Track{
		ID:            i.ID,
		URL:           link,
		Title:         i.Title,
		PlaylistTitle: playlistTitle,
		Uploader:      uploader,
		Duration:      maths.RoundFloat64ToInt(i.Duration),
		UploadDate:    entity.ParseUploadDate(i.UploadDate),
		ViewCount:     int64(i.ViewCount),
		ThumbnailURL:  i.bestThumbnail(),
	}
}

func (i *info) bestThumbnail() string {
	if i.Thumbnail != "" {
		return i.Thumbnail
	}

	best, area := "", -1

	for _, t := range i.Thumbnails {
		if a := t.Width * t.Height; a >= area && t.URL != "" {
			best, area = t.URL, a
		}
	}

	return best
}

// result wraps ytdlp.Result for custom logging.
type result struct {
	*ytdlp.Result
}

// LogValue implements the slog.LogValuer interface for custom logging of result.
func (r result) LogValue() slog.Value {
	if r.Result == nil {
		return slog.GroupValue(slog.String("error", "nil result"))
	}

	return slog.GroupValue(
		slog.String("executable", r.Executable),
		slog.String("args", strings.Join(r.Args, " ")),
		slog.String("stderr", r.Stderr),
	)
}
