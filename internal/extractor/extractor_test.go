package extractor

import (
	"context"
	"errors"
	"testing"

	"audiograb/internal/config"
	"audiograb/internal/errs"
	"audiograb/internal/proxymgr"
	"audiograb/pkg/logger"
	"audiograb/pkg/ytlink"

	"github.com/lrstanley/go-ytdlp"
)

const videoJSON = `{
	"_type": "video",
	"id": "dQw4w9WgXcQ",
	"title": "Never Gonna Give You Up",
	"uploader": "Rick Astley",
	"duration": 212.4,
	"upload_date": "20091025",
	"view_count": 1500000000,
	"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
	"webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
}`

const playlistJSON = `{
	"_type": "playlist",
	"id": "PL123",
	"title": "Road trip",
	"entries": [
		{"_type": "url", "id": "aaaaaaaaaaa", "title": "First", "channel": "Band", "duration": 61,
		 "url": "https://www.youtube.com/watch?v=aaaaaaaaaaa",
		 "thumbnails": [{"url": "https://i/small.jpg", "width": 120, "height": 90}, {"url": "https://i/big.jpg", "width": 480, "height": 360}]},
		null,
		{"_type": "url", "id": "", "title": "missing id"},
		{"_type": "url", "id": "bbbbbbbbbbb", "title": "Second", "url": "bbbbbbbbbbb", "view_count": null}
	]
}`

const channelJSON = `{
	"_type": "playlist",
	"id": "UCabc",
	"title": "Band - Videos",
	"entries": [
		{"_type": "playlist", "id": "UCabc", "title": "Band - Videos", "entries": [
			{"_type": "url", "id": "ccccccccccc", "title": "Live"}
		]},
		{"_type": "url", "id": "UCabc", "url": "https://www.youtube.com/@band/shorts"},
		{"_type": "url", "id": "ddddddddddd", "title": "Studio"}
	]
}`

func TestParseInfo(t *testing.T) {
	t.Run("video", func(t *testing.T) {
		res, err := ParseInfo([]byte(videoJSON), ytlink.KindVideo)
		if err != nil {
			t.Fatalf("ParseInfo: %v", err)
		}

		if len(res.Tracks) != 1 {
			t.Fatalf("got %d tracks, want 1", len(res.Tracks))
		}

		tr := res.Tracks[0]
		if tr.ID != "dQw4w9WgXcQ" || tr.Uploader != "Rick Astley" || tr.Duration != 212 {
			t.Errorf("unexpected track: %+v", tr)
		}

		if tr.Year() != "2009" || tr.ViewCount != 1500000000 {
			t.Errorf("date or views not mapped: %+v", tr)
		}
	})

	t.Run("playlist", func(t *testing.T) {
		res, err := ParseInfo([]byte(playlistJSON), ytlink.KindPlaylist)
		if err != nil {
			t.Fatalf("ParseInfo: %v", err)
		}

		if res.Title != "Road trip" || len(res.Tracks) != 2 {
			t.Fatalf("unexpected result: %+v", res)
		}

		first, second := res.Tracks[0], res.Tracks[1]

		if first.Uploader != "Band" || first.ThumbnailURL != "https://i/big.jpg" || first.PlaylistTitle != "Road trip" {
			t.Errorf("first track: %+v", first)
		}

		if second.URL != "https://www.youtube.com/watch?v=bbbbbbbbbbb" {
			t.Errorf("relative url must fall back to watch link, got %q", second.URL)
		}
	})

	t.Run("nested channel tabs", func(t *testing.T) {
		res, err := ParseInfo([]byte(channelJSON), ytlink.KindChannel)
		if err != nil {
			t.Fatalf("ParseInfo: %v", err)
		}

		if len(res.Tracks) != 2 || res.Tracks[0].ID != "ccccccccccc" || res.Tracks[1].ID != "ddddddddddd" {
			t.Errorf("unexpected tracks: %+v", res.Tracks)
		}
	})

	t.Run("empty playlist", func(t *testing.T) {
		_, err := ParseInfo([]byte(`{"_type":"playlist","entries":[]}`), ytlink.KindPlaylist)
		if !errors.Is(err, errs.ErrNoTracks) {
			t.Errorf("err = %v, want ErrNoTracks", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseInfo([]byte("ERROR: not json"), ytlink.KindVideo)
		if !errors.Is(err, errs.ErrExtractFailed) {
			t.Errorf("err = %v, want ErrExtractFailed", err)
		}
	})
}

func TestFinalize(t *testing.T) {
	res, err := ParseInfo([]byte(playlistJSON), ytlink.KindPlaylist)
	if err != nil {
		t.Fatal(err)
	}

	res, err = finalize(res, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Tracks) != 1 || res.Tracks[0].Index != 1 {
		t.Errorf("limit or index not applied: %+v", res.Tracks)
	}

	if _, err := finalize(&Result{}, 5); !errors.Is(err, errs.ErrNoTracks) {
		t.Errorf("err = %v, want ErrNoTracks", err)
	}
}

func TestChannelUploadsURL(t *testing.T) {
	tests := map[string]string{
		"https://www.youtube.com/@band":                "https://www.youtube.com/@band/videos",
		"https://www.youtube.com/@band/":               "https://www.youtube.com/@band/videos",
		"https://www.youtube.com/@band/videos":         "https://www.youtube.com/@band/videos",
		"https://www.youtube.com/@band/streams":        "https://www.youtube.com/@band/streams",
		"https://www.youtube.com/@band/featured":       "https://www.youtube.com/@band/videos",
		"https://www.youtube.com/channel/UCabc?si=x":   "https://www.youtube.com/channel/UCabc/videos?si=x",
		"  https://www.youtube.com/c/SomeCustomName  ": "https://www.youtube.com/c/SomeCustomName/videos",
	}

	for in, want := range tests {
		if got := channelUploadsURL(in); got != want {
			t.Errorf("channelUploadsURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMockDispatch(t *testing.T) {
	ctx := t.Context()
	m := NewMock(3)

	tests := []struct {
		url        string
		wantKind   ytlink.Kind
		wantTracks int
		wantErr    error
	}{
		{"https://youtu.be/dQw4w9WgXcQ", ytlink.KindVideo, 1, nil},
		{"https://www.youtube.com/playlist?list=PL1", ytlink.KindPlaylist, 3, nil},
		{"https://www.youtube.com/@band", ytlink.KindChannel, 3, nil},
		{"https://example.com", "", 0, errs.ErrInvalidURL},
	}

	for _, tc := range tests {
		res, err := m.Extract(ctx, tc.url)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("Extract(%q) err = %v, want %v", tc.url, err, tc.wantErr)

			continue
		}

		if err != nil {
			continue
		}

		if res.Kind != tc.wantKind || len(res.Tracks) != tc.wantTracks {
			t.Errorf("Extract(%q) = %s with %d tracks", tc.url, res.Kind, len(res.Tracks))
		}
	}

	if _, err := m.Playlist(ctx, "https://youtu.be/dQw4w9WgXcQ"); !errors.Is(err, errs.ErrWrongKind) {
		t.Errorf("Playlist(video) err = %v, want ErrWrongKind", err)
	}
}

func TestNativeChannelUnsupported(t *testing.T) {
	n := NewNative(logger.Discard(), config.Extract{MaxPlaylistVideos: 10}, Deps{})

	if _, err := n.Channel(t.Context(), "https://www.youtube.com/@band"); !errors.Is(err, errs.ErrUnsupportedKind) {
		t.Errorf("err = %v, want ErrUnsupportedKind", err)
	}

	if _, err := n.Video(t.Context(), "https://www.youtube.com/@band"); !errors.Is(err, errs.ErrWrongKind) {
		t.Errorf("err = %v, want ErrWrongKind", err)
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{Extract: config.Extract{Engine: config.EngineNative}}

	e, err := New(logger.Discard(), cfg, Deps{})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := e.(*Native); !ok {
		t.Errorf("got %T, want *Native", e)
	}

	cfg.Extract.Engine = "other"
	if _, err := New(logger.Discard(), cfg, Deps{}); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestYTdlpRun(t *testing.T) {
	const proxy = "socks5h://127.0.0.1:1080"

	newExtractor := func(stdout string, runErr error) (*YTdlp, *proxymgr.Manager) {
		proxies := proxymgr.New(logger.Discard(), config.Proxy{Proxies: []string{proxy}, MaxFailures: 1}, nil)
		y := NewYTdlp(logger.Discard(), config.Extract{MaxPlaylistVideos: 1}, config.Dir{}, Deps{Proxies: proxies})
		y.run = func(_ context.Context, _ *ytdlp.Command, _ string) (*ytdlp.Result, error) {
			return &ytdlp.Result{Stdout: stdout}, runErr
		}

		return y, proxies
	}

	t.Run("success caps playlist", func(t *testing.T) {
		y, proxies := newExtractor(playlistJSON, nil)

		res, err := y.Extract(t.Context(), "https://www.youtube.com/playlist?list=PL123")
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}

		if len(res.Tracks) != 1 {
			t.Errorf("got %d tracks, want cap of 1", len(res.Tracks))
		}

		if proxies.Available() != 1 {
			t.Error("successful run must keep proxy available")
		}
	})

	t.Run("run failure marks proxy", func(t *testing.T) {
		y, proxies := newExtractor("", errors.New("exit status 1"))

		_, err := y.Video(t.Context(), "https://youtu.be/dQw4w9WgXcQ")
		if !errors.Is(err, errs.ErrExtractFailed) {
			t.Fatalf("err = %v, want ErrExtractFailed", err)
		}

		if proxies.Available() != 0 {
			t.Error("failed run must bench the proxy")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		y, _ := newExtractor("", errors.New("killed"))

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := y.Video(ctx, "https://youtu.be/dQw4w9WgXcQ")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
