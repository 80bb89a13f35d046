package entity

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// uploadDateLayouts are tried in order when parsing upload dates.
var uploadDateLayouts = []string{"20060102", "2006-01-02", "02.01.2006"}

// Track is one downloadable video resolved from a link.
type Track struct {
	Index         int        `json:"index"`
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	PlaylistTitle string     `json:"playlistTitle,omitempty"`
	Uploader      string     `json:"uploader,omitempty"`
	Duration      int        `json:"duration,omitempty"` // seconds, 0 when unknown
	UploadDate    *time.Time `json:"uploadDate,omitempty"`
	ViewCount     int64      `json:"viewCount,omitempty"`
	ThumbnailURL  string     `json:"thumbnailUrl,omitempty"`
}

// HumanDuration renders the duration as "1h 2m 3s".
// Unknown (zero) durations render empty.
func (t Track) HumanDuration() string {
	if t.Duration <= 0 {
		return ""
	}

	return FormatDuration(t.Duration)
}

// Year returns the upload year, empty when the date is unknown.
func (t Track) Year() string {
	if t.UploadDate == nil {
		return ""
	}

	return t.UploadDate.Format("2006")
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (t Track) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("index", t.Index),
		slog.String("id", t.ID),
		slog.String("url", t.URL),
		slog.String("title", t.Title),
		slog.String("playlist", t.PlaylistTitle),
		slog.Int("duration", t.Duration),
	)
}

// FormatDuration renders whole seconds as "1h 2m 3s", skipping zero units.
func FormatDuration(seconds int) string {
	h, m, s := seconds/3600, seconds%3600/60, seconds%60

	var parts []string

	for _, u := range []struct {
		v    int
		unit string
	}{{h, "h"}, {m, "m"}, {s, "s"}} {
		if u.v > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", u.v, u.unit))
		}
	}

	if len(parts) == 0 {
		return "0s"
	}

	return strings.Join(parts, " ")
}

// ParseUploadDate accepts YYYYMMDD, YYYY-MM-DD and DD.MM.YYYY. Anything else yields nil.
func ParseUploadDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	for _, layout := range uploadDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	return nil
}
