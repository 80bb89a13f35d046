package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/consts"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/pkg/ptr"
	"audiograb/pkg/ytlink"

	"github.com/kkdai/youtube/v2"
)

const nativeHTTPTimeout = 30 * time.Second

// Native extracts metadata in-process with kkdai/youtube. It cannot list channels.
type Native struct {
	log  *slog.Logger
	cfg  config.Extract
	deps Deps

	// newClient is replaced in tests.
	newClient func(proxy string) *youtube.Client
}

// NewNative creates a pure Go extractor.
func NewNative(log *slog.Logger, cfg config.Extract, deps Deps) *Native {
	return &Native{
		log:       log.With(slog.String("package", "extractor"), slog.String("engine", consts.EngineNative)),
		cfg:       cfg,
		deps:      deps,
		newClient: newYoutubeClient,
	}
}

func newYoutubeClient(proxy string) *youtube.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxy != "" {
		if u, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	return &youtube.Client{HTTPClient: &http.Client{Timeout: nativeHTTPTimeout, Transport: transport}}
}

// Video implements Extractor.
func (n *Native) Video(ctx context.Context, raw string) (res *Result, err error) {
	if err := expect(raw, ytlink.KindVideo); err != nil {
		return nil, err
	}

	defer func() { n.deps.Metrics.RecordExtraction(consts.EngineNative, string(ytlink.KindVideo), status(err)) }()

	proxy, client := n.client()

	video, err := client.GetVideoContext(ctx, raw)
	if err != nil {
		n.deps.Proxies.MarkFailed(proxy)

		return nil, fmt.Errorf("%w: get video: %w", errs.ErrExtractFailed, err)
	}

	n.deps.Proxies.MarkSuccess(proxy)

	return finalize(&Result{
		Kind:   ytlink.KindVideo,
		Title:  video.Title,
		Tracks: []entity.Track{videoTrack(video)},
	}, 1)
}

// Playlist implements Extractor.
func (n *Native) Playlist(ctx context.Context, raw string) (res *Result, err error) {
	if err := expect(raw, ytlink.KindPlaylist); err != nil {
		return nil, err
	}

	defer func() { n.deps.Metrics.RecordExtraction(consts.EngineNative, string(ytlink.KindPlaylist), status(err)) }()

	proxy, client := n.client()

	playlist, err := client.GetPlaylistContext(ctx, raw)
	if err != nil {
		n.deps.Proxies.MarkFailed(proxy)

		return nil, fmt.Errorf("%w: get playlist: %w", errs.ErrExtractFailed, err)
	}

	n.deps.Proxies.MarkSuccess(proxy)

	res = &Result{Kind: ytlink.KindPlaylist, Title: playlist.Title}

	for _, entry := range playlist.Videos {
		if entry == nil || entry.ID == "" {
			continue
		}

		res.Tracks = append(res.Tracks, entity.Track{
			ID:           entry.ID,
			URL:          watchURL(entry.ID),
			Title:        entry.Title,
			Uploader:     entry.Author,
			Duration:     int(entry.Duration.Seconds()),
			ThumbnailURL: largest(entry.Thumbnails),
		})
	}

	id, _ := ytlink.PlaylistID(raw)
	n.log.InfoContext(ctx, "playlist extracted",
		slog.String("url", raw), slog.String("playlist_id", id), slog.Int("videos", len(res.Tracks)))

	return finalize(res, max(n.cfg.MaxPlaylistVideos, 1))
}

// Channel implements Extractor. Channel listing needs yt-dlp.
func (n *Native) Channel(_ context.Context, raw string) (*Result, error) {
	if err := expect(raw, ytlink.KindChannel); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("%w: %s engine cannot list channels", errs.ErrUnsupportedKind, consts.EngineNative)
}

// Extract implements Extractor.
func (n *Native) Extract(ctx context.Context, raw string) (*Result, error) {
	return dispatch(ctx, n, raw)
}

func (n *Native) client() (string, *youtube.Client) {
	proxy := n.deps.Proxies.Next()

	return proxy, n.newClient(proxy)
}

func videoTrack(v *youtube.Video) entity.Track {
	t := entity.Track{
		ID:           v.ID,
		URL:          watchURL(v.ID),
		Title:        v.Title,
		Uploader:     v.Author,
		Duration:     int(v.Duration.Seconds()),
		ViewCount:    int64(v.Views),
		ThumbnailURL: largest(v.Thumbnails),
	}

	if !v.PublishDate.IsZero() {
		t.UploadDate = ptr.Of(v.PublishDate)
	}

	return t
}

func largest(thumbs youtube.Thumbnails) string {
	best, area := "", -1

	for _, t := range thumbs {
		if a := int(t.Width * t.Height); a >= area && t.URL != "" {
			best, area = t.URL, a
		}
	}

	return best
}
