package extractor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/pkg/ytlink"
)

// Mock resolves links without network access. Playlists and channels yield Size tracks.
type Mock struct {
	Size int
	// Err, when set, is returned by every call.
	Err error
	// Delay holds Extract back until it passes or ctx ends.
	Delay time.Duration
}

// NewMock creates a mock extractor producing size tracks per playlist.
func NewMock(size int) *Mock {
	return &Mock{Size: size}
}

// Video implements Extractor.
func (m *Mock) Video(_ context.Context, raw string) (*Result, error) {
	if err := m.check(raw, ytlink.KindVideo); err != nil {
		return nil, err
	}

	id, _ := ytlink.VideoID(raw)

	return finalize(&Result{Kind: ytlink.KindVideo, Tracks: []entity.Track{mockTrack(id, 1)}}, 1)
}

// Playlist implements Extractor.
func (m *Mock) Playlist(_ context.Context, raw string) (*Result, error) {
	if err := m.check(raw, ytlink.KindPlaylist); err != nil {
		return nil, err
	}

	return m.list(ytlink.KindPlaylist, "Mock playlist")
}

// Channel implements Extractor.
func (m *Mock) Channel(_ context.Context, raw string) (*Result, error) {
	if err := m.check(raw, ytlink.KindChannel); err != nil {
		return nil, err
	}

	return m.list(ytlink.KindChannel, "Mock channel")
}

// Extract implements Extractor.
func (m *Mock) Extract(ctx context.Context, raw string) (*Result, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return dispatch(ctx, m, raw)
}

func (m *Mock) check(raw string, kind ytlink.Kind) error {
	if m.Err != nil {
		return m.Err
	}

	return expect(raw, kind)
}

func (m *Mock) list(kind ytlink.Kind, title string) (*Result, error) {
	if m.Size <= 0 {
		return nil, errs.ErrNoTracks
	}

	res := &Result{Kind: kind, Title: title}
	for i := range m.Size {
		res.Tracks = append(res.Tracks, mockTrack(fmt.Sprintf("mock%07d", i+1), i+1))
	}

	return finalize(res, 0)
}

func mockTrack(id string, n int) entity.Track {
	return entity.Track{
		ID:       id,
		URL:      watchURL(id),
		Title:    "Mock track " + strconv.Itoa(n),
		Uploader: "Mock uploader",
		Duration: 60 * n,
	}
}
