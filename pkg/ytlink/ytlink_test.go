package ytlink

import (
	"errors"
	"testing"

	"audiograb/internal/errs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Kind
	}{
		{"watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", KindVideo},
		{"watch no scheme", "youtube.com/watch?v=dQw4w9WgXcQ", KindVideo},
		{"watch mobile", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", KindVideo},
		{"watch music", "https://music.youtube.com/watch?v=dQw4w9WgXcQ", KindVideo},
		{"watch with list", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123", KindVideo},
		{"watch v not first", "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", KindVideo},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", KindVideo},
		{"shorts", "https://www.youtube.com/shorts/abcDEF12345", KindVideo},
		{"embed", "https://www.youtube.com/embed/abcDEF12345", KindVideo},
		{"upper case", "HTTPS://WWW.YOUTUBE.COM/watch?v=dQw4w9WgXcQ", KindVideo},
		{"surrounding spaces", "  https://youtu.be/dQw4w9WgXcQ \n", KindVideo},
		{"playlist", "https://www.youtube.com/playlist?list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf", KindPlaylist},
		{"music playlist", "https://music.youtube.com/playlist?list=OLAK5uy_abc", KindPlaylist},
		{"channel id", "https://www.youtube.com/channel/UC_x5XG1OV2P6uZZ5FSM9Ttw", KindChannel},
		{"handle", "https://www.youtube.com/@GoogleDevelopers", KindChannel},
		{"music channel", "https://music.youtube.com/channel/UC-9-kyTW8ZkZNDHQJ6FgpwQ", KindChannel},
		{"custom", "https://www.youtube.com/c/GoogleDevelopers", KindChannel},
		{"user", "https://www.youtube.com/user/GoogleDevelopers", KindChannel},
		{"empty", "", KindUnknown},
		{"other host", "https://vimeo.com/12345", KindUnknown},
		{"lookalike host", "https://notyoutube.com/watch?v=abc", KindUnknown},
		{"watch without id", "https://www.youtube.com/watch", KindUnknown},
		{"inner space", "https://youtu.be/abc def", KindUnknown},
		{"plain text", "not a url", KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.in); got != tc.want {
				t.Errorf("Classify(%q) = %q, want %q", tc.in, got, tc.want)
			}

			if got := Validate(tc.in); got != (tc.want != KindUnknown) {
				t.Errorf("Validate(%q) = %v", tc.in, got)
			}
		})
	}
}

func TestKindHelpers(t *testing.T) {
	if !IsPlaylist("https://www.youtube.com/playlist?list=PL1") {
		t.Error("expected playlist")
	}

	if IsPlaylist("https://www.youtube.com/watch?v=abc&list=PL1") {
		t.Error("watch link with list must not be a playlist")
	}

	if !IsChannel("https://www.youtube.com/@handle") {
		t.Error("expected channel")
	}

	if IsChannel("https://youtu.be/abc") {
		t.Error("video reported as channel")
	}
}

func TestVideoID(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?t=10&v=dQw4w9WgXcQ&list=PL1", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/abc_DEF-123", "abc_DEF-123", true},
		{"https://www.youtube.com/shorts/xyz", "xyz", true},
		{"https://www.youtube.com/playlist?list=PL1", "", false},
		{"garbage", "", false},
	}

	for _, tc := range tests {
		got, ok := VideoID(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("VideoID(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestPlaylistID(t *testing.T) {
	id, ok := PlaylistID("https://www.youtube.com/playlist?list=PLabc")
	if !ok || id != "PLabc" {
		t.Errorf("PlaylistID = (%q, %v)", id, ok)
	}

	if _, ok := PlaylistID("https://youtu.be/abc"); ok {
		t.Error("video link has no playlist id")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{
			name: "tracking params dropped",
			in:   "http://www.youtube.com/watch?v=abc&si=track&feature=share#t=1",
			want: "https://www.youtube.com/watch?v=abc",
		},
		{
			name: "list kept",
			in:   "https://www.youtube.com/watch?v=abc&list=PL1&index=2",
			want: "https://www.youtube.com/watch?list=PL1&v=abc",
		},
		{
			name: "scheme added",
			in:   "youtu.be/abc?si=x",
			want: "https://youtu.be/abc",
		},
		{
			name:    "invalid",
			in:      "https://example.com/watch?v=abc",
			wantErr: errs.ErrInvalidURL,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Sanitize(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Sanitize(%q) err = %v, want %v", tc.in, err, tc.wantErr)
			}

			if got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("youtube.com/watch?v=abc&list=PL1")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if p.Scheme != "https" || p.Host != "youtube.com" || p.Path != "/watch" {
		t.Errorf("unexpected parts: %+v", p)
	}

	if p.VideoID != "abc" || p.Query.Get("list") != "PL1" {
		t.Errorf("unexpected id or query: %+v", p)
	}

	if _, err := Parse("ftp://nothing"); !errors.Is(err, errs.ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestIsHTTPURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/a", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"https://", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsHTTPURL(tc.in); got != tc.want {
			t.Errorf("IsHTTPURL(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  https://youtu.be/abc  "); got != "https://youtu.be/abc" {
		t.Errorf("Normalize = %q", got)
	}
}
