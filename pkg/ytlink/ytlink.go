// Package ytlink validates and classifies YouTube links.
package ytlink

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"audiograb/internal/errs"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// Kind is the resource a link points to.
type Kind string

// Link kinds.
const (
	KindUnknown  Kind = "unknown"
	KindVideo    Kind = "video"
	KindPlaylist Kind = "playlist"
	KindChannel  Kind = "channel"
)

// Each video pattern captures the video ID in its last group.
var (
	videoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(https?://)?(www\.|m\.|music\.)?youtube\.com/watch\?(?:[^#]*&)?v=([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`(?i)^(https?://)?youtu\.be/([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`(?i)^(https?://)?(www\.|m\.)?youtube\.com/(?:shorts|embed|live)/([A-Za-z0-9_-]+)`),
	}
	playlistPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(https?://)?(www\.|m\.|music\.)?youtube\.com/playlist\?(?:[^#]*&)?list=([A-Za-z0-9_-]+)`),
	}
	channelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(https?://)?(www\.|m\.|music\.)?youtube\.com/(?:channel/[A-Za-z0-9_-]+|@[A-Za-z0-9_.-]+|c/[^/?#\s]+|user/[^/?#\s]+)`),
	}
)

// Parts is a parsed YouTube link.
type Parts struct {
	Scheme  string     `json:"scheme"`
	Host    string     `json:"host"`
	Path    string     `json:"path"`
	VideoID string     `json:"videoId,omitempty"`
	Query   url.Values `json:"query,omitempty"`
}

// Validate reports whether raw is a recognised video, playlist or channel link.
func Validate(raw string) bool {
	return Classify(raw) != KindUnknown
}

// Classify returns the kind of resource raw points to.
// A watch link carrying a list parameter is a video.
func Classify(raw string) Kind {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return KindUnknown
	}

	switch {
	case matchAny(videoPatterns, raw):
		return KindVideo
	case matchAny(playlistPatterns, raw):
		return KindPlaylist
	case matchAny(channelPatterns, raw):
		return KindChannel
	default:
		return KindUnknown
	}
}

// IsPlaylist reports whether raw is a playlist link.
func IsPlaylist(raw string) bool {
	return Classify(raw) == KindPlaylist
}

// IsChannel reports whether raw is a channel link.
func IsChannel(raw string) bool {
	return Classify(raw) == KindChannel
}

// VideoID extracts the video ID from watch, youtu.be, shorts, embed and live links.
func VideoID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)

	for _, re := range videoPatterns {
		m := re.FindStringSubmatch(raw)
		if m != nil {
			return m[len(m)-1], true
		}
	}

	return "", false
}

// PlaylistID extracts the list parameter of a playlist link.
func PlaylistID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)

	for _, re := range playlistPatterns {
		m := re.FindStringSubmatch(raw)
		if m != nil {
			return m[len(m)-1], true
		}
	}

	return "", false
}

// Sanitize forces https and drops every query parameter except v and list.
func Sanitize(raw string) (string, error) {
	if !Validate(raw) {
		return "", fmt.Errorf("%w: %q", errs.ErrInvalidURL, raw)
	}

	u, err := url.Parse(withScheme(strings.TrimSpace(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrInvalidURL, err)
	}

	query := url.Values{}

	for _, key := range []string{"v", "list"} {
		if v := u.Query().Get(key); v != "" {
			query.Set(key, v)
		}
	}

	u.Scheme = schemeHTTPS
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = query.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// Parse splits a YouTube link into its components.
func Parse(raw string) (Parts, error) {
	if !Validate(raw) {
		return Parts{}, fmt.Errorf("%w: %q", errs.ErrInvalidURL, raw)
	}

	u, err := url.Parse(withScheme(strings.TrimSpace(raw)))
	if err != nil {
		return Parts{}, fmt.Errorf("%w: %w", errs.ErrInvalidURL, err)
	}

	id, _ := VideoID(raw)

	return Parts{
		Scheme:  u.Scheme,
		Host:    u.Host,
		Path:    u.Path,
		VideoID: id,
		Query:   u.Query(),
	}, nil
}

// IsHTTPURL checks that raw is an absolute http(s) URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)

	return err == nil && u.Host != "" && (u.Scheme == schemeHTTP || u.Scheme == schemeHTTPS)
}

// Normalize trims spaces, parses and returns the URL in string format.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.String()
}

// withScheme prepends https to scheme-less input.
// Example: youtu.be/abc => https://youtu.be/abc
func withScheme(raw string) string {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, schemeHTTP+"://") || strings.HasPrefix(lower, schemeHTTPS+"://") {
		return raw
	}

	return schemeHTTPS + "://" + raw
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}

	return false
}
