// Package extractor resolves a YouTube link into the tracks it contains.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"audiograb/internal/config"
	"audiograb/internal/depmanager"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/observability"
	"audiograb/internal/proxymgr"
	"audiograb/pkg/ytlink"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Result is a resolved link.
type Result struct {
	Kind   ytlink.Kind
	Title  string
	Tracks []entity.Track
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(r.Kind)),
		slog.String("title", r.Title),
		slog.Int("tracks", len(r.Tracks)),
	)
}

// Extractor resolves links into tracks.
type Extractor interface {
	// Video resolves a single video link.
	Video(ctx context.Context, url string) (*Result, error)
	// Playlist resolves a playlist link.
	Playlist(ctx context.Context, url string) (*Result, error)
	// Channel resolves a channel link into its uploads.
	Channel(ctx context.Context, url string) (*Result, error)
	// Extract dispatches on the link kind.
	Extract(ctx context.Context, url string) (*Result, error)
}

// Deps are the collaborators engines may use.
type Deps struct {
	Bins    depmanager.Resolver
	Proxies *proxymgr.Manager
	Metrics *observability.Metrics
}

// New returns the engine named by cfg.Extract.Engine.
func New(log *slog.Logger, cfg *config.Config, deps Deps) (Extractor, error) {
	switch cfg.Extract.Engine {
	case config.EngineYTdlp, "":
		return NewYTdlp(log, cfg.Extract, cfg.Dir, deps), nil
	case config.EngineNative:
		return NewNative(log, cfg.Extract, deps), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", errs.ErrExtractFailed, cfg.Extract.Engine)
	}
}

// dispatch routes raw to the method matching its kind.
func dispatch(ctx context.Context, e Extractor, raw string) (*Result, error) {
	switch ytlink.Classify(raw) {
	case ytlink.KindVideo:
		return e.Video(ctx, raw)
	case ytlink.KindPlaylist:
		return e.Playlist(ctx, raw)
	case ytlink.KindChannel:
		return e.Channel(ctx, raw)
	default:
		return nil, errs.ErrInvalidURL
	}
}

// expect checks raw is a valid link of the wanted kind.
func expect(raw string, want ytlink.Kind) error {
	got := ytlink.Classify(raw)

	switch {
	case got == ytlink.KindUnknown:
		return errs.ErrInvalidURL
	case got != want:
		return fmt.Errorf("%w: want %s, got %s", errs.ErrWrongKind, want, got)
	default:
		return nil
	}
}

// finalize numbers tracks from 1, caps them at limit and fills the playlist title.
func finalize(res *Result, limit int) (*Result, error) {
	if limit > 0 && len(res.Tracks) > limit {
		res.Tracks = res.Tracks[:limit]
	}

	if len(res.Tracks) == 0 {
		return nil, errs.ErrNoTracks
	}

	for i := range res.Tracks {
		res.Tracks[i].Index = i + 1

		if res.Kind != ytlink.KindVideo && res.Tracks[i].PlaylistTitle == "" {
			res.Tracks[i].PlaylistTitle = res.Title
		}
	}

	if res.Title == "" {
		res.Title = res.Tracks[0].Title
	}

	return res, nil
}

// watchURL returns the canonical watch link for a video ID.
func watchURL(id string) string {
	return watchURLPrefix + id
}

// channelUploadsURL points a channel link at its uploads tab.
// Example: https://www.youtube.com/@handle => https://www.youtube.com/@handle/videos
func channelUploadsURL(raw string) string {
	parts, err := ytlink.Parse(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}

	path := strings.TrimRight(parts.Path, "/")
	lower := strings.ToLower(path)

	switch {
	case strings.HasSuffix(lower, "/featured"):
		path = path[:len(path)-len("/featured")] + "/videos"
	case hasTab(lower, "/videos", "/streams", "/shorts", "/playlists"):
	default:
		path += "/videos"
	}

	u := url.URL{Scheme: parts.Scheme, Host: parts.Host, Path: path, RawQuery: parts.Query.Encode()}

	return u.String()
}

func hasTab(path string, tabs ...string) bool {
	for _, tab := range tabs {
		if strings.HasSuffix(path, tab) {
			return true
		}
	}

	return false
}

func status(err error) string {
	if err != nil {
		return observability.StatusFailed
	}

	return observability.StatusSuccess
}
