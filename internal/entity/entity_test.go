package entity

import (
	"errors"
	"slices"
	"testing"
	"time"

	"audiograb/internal/errs"
	"audiograb/pkg/filename"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m"},
		{3723, "1h 2m 3s"},
		{3603, "1h 3s"},
		{7200, "2h"},
	}

	for _, tc := range tests {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if got := (Track{}).HumanDuration(); got != "" {
		t.Errorf("unknown duration = %q, want empty", got)
	}

	if got := (Track{Duration: 125}).HumanDuration(); got != "2m 5s" {
		t.Errorf("HumanDuration = %q", got)
	}
}

func TestParseUploadDate(t *testing.T) {
	want := time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"20240309", "2024-03-09", "09.03.2024", " 20240309 "} {
		got := ParseUploadDate(in)
		if got == nil || !got.Equal(want) {
			t.Errorf("ParseUploadDate(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "yesterday", "2024/03/09", "20241399"} {
		if got := ParseUploadDate(in); got != nil {
			t.Errorf("ParseUploadDate(%q) = %v, want nil", in, got)
		}
	}

	if (Track{UploadDate: &want}).Year() != "2024" || (Track{}).Year() != "" {
		t.Error("unexpected Year()")
	}
}

func TestRequestWithDefaults(t *testing.T) {
	r := Request{URL: "  https://youtu.be/abc  ", Select: []int{3, 1, 3}}.WithDefaults(Defaults{})

	if r.URL != "https://youtu.be/abc" || r.Format != FormatMP3 || r.Quality != 192 {
		t.Errorf("unexpected defaults: %+v", r)
	}

	if r.Naming != filename.NamingOriginal || r.Delivery != DeliveryTemp {
		t.Errorf("unexpected defaults: %+v", r)
	}

	if !slices.Equal(r.Select, []int{1, 3}) {
		t.Errorf("select = %v, want sorted and deduplicated", r.Select)
	}

	lossless := Request{URL: "https://youtu.be/abc", Format: "FLAC", Quality: 320}.WithDefaults(Defaults{})
	if lossless.Format != FormatFLAC || lossless.Quality != 0 {
		t.Errorf("lossless: %+v", lossless)
	}

	prefixed := Request{URL: "https://youtu.be/abc", Naming: filename.NamingPrefix}.WithDefaults(Defaults{})
	if prefixed.Prefix != filename.DefaultPrefix {
		t.Errorf("prefix = %q", prefixed.Prefix)
	}

	configured := Request{URL: "https://youtu.be/abc"}.WithDefaults(Defaults{Format: FormatM4A, Quality: 256})
	if configured.Format != FormatM4A || configured.Quality != 256 {
		t.Errorf("configured defaults not applied: %+v", configured)
	}

	explicit := Request{URL: "https://youtu.be/abc", Format: FormatWEBM, Quality: 128}.WithDefaults(Defaults{Format: FormatM4A, Quality: 256})
	if explicit.Format != FormatWEBM || explicit.Quality != 128 {
		t.Errorf("request values must win over defaults: %+v", explicit)
	}
}

func TestRequestValidate(t *testing.T) {
	base := Request{URL: "https://www.youtube.com/watch?v=abc"}

	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"ok", func(*Request) {}, nil},
		{"bad url", func(r *Request) { r.URL = "https://vimeo.com/1" }, errs.ErrInvalidURL},
		{"bad format", func(r *Request) { r.Format = "ogg" }, errs.ErrInvalidFormat},
		{"bad quality", func(r *Request) { r.Quality = 100 }, errs.ErrInvalidQuality},
		{"bad naming", func(r *Request) { r.Naming = "random" }, errs.ErrInvalidNaming},
		{"bad delivery", func(r *Request) { r.Delivery = "email" }, errs.ErrInvalidDelivery},
		{"folder missing", func(r *Request) { r.Delivery = DeliveryFolder }, errs.ErrInvalidFolder},
		{"negative select", func(r *Request) { r.Select = []int{-1} }, errs.ErrInvalidSelection},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := base.WithDefaults(Defaults{})
			tc.mutate(&r)

			err := r.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRequestKey(t *testing.T) {
	a := Request{URL: "https://youtu.be/abc"}.WithDefaults(Defaults{})
	b := Request{URL: " https://youtu.be/abc "}.WithDefaults(Defaults{})

	if a.Key() != b.Key() {
		t.Error("whitespace must not change the key")
	}

	tracked := Request{URL: "https://youtu.be/abc?si=share123&t=42"}.WithDefaults(Defaults{})
	if tracked.URL != "https://youtu.be/abc" || a.Key() != tracked.Key() {
		t.Errorf("tracking parameters must not change the key: %q", tracked.URL)
	}

	watch := Request{URL: "https://www.youtube.com/watch?v=abc&feature=share"}.WithDefaults(Defaults{})
	plain := Request{URL: "https://www.youtube.com/watch?v=abc"}.WithDefaults(Defaults{})

	if watch.Key() != plain.Key() {
		t.Error("feature parameter must not change the key")
	}

	c := a
	c.Quality = 320

	if a.Key() == c.Key() {
		t.Error("quality must change the key")
	}

	d := a
	d.Select = []int{0}

	if a.Key() == d.Key() {
		t.Error("selection must change the key")
	}
}

func TestNewSummary(t *testing.T) {
	empty := NewSummary(nil)
	if empty.Total != 0 || empty.SuccessRate != 0 || empty.SuccessfulTitles == nil {
		t.Errorf("empty summary: %+v", empty)
	}

	s := NewSummary([]MediaFile{
		{Title: "a", Status: FileStatusFinished, Size: 10},
		{Title: "b", Status: FileStatusError},
		{Title: "c", Status: FileStatusFinished, Size: 5},
	})

	if s.Total != 3 || s.Successful != 2 || s.Failed != 1 || s.TotalSize != 15 {
		t.Errorf("summary: %+v", s)
	}

	if s.SuccessRate != 66.7 {
		t.Errorf("success rate = %v", s.SuccessRate)
	}

	if !slices.Equal(s.SuccessfulTitles, []string{"a", "c"}) || !slices.Equal(s.FailedTitles, []string{"b"}) {
		t.Errorf("titles: %+v", s)
	}
}

func TestNewEstimate(t *testing.T) {
	e := NewEstimate([]Track{{Duration: 60}, {Duration: 0}, {Duration: 30}})

	if e.Tracks != 3 || e.TotalDuration != 90 || e.EstimatedSize != 15*1024*1024 {
		t.Errorf("estimate: %+v", e)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusFinished, JobStatusError, JobStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []JobStatus{JobStatusStarting, JobStatusExtracting, JobStatusDownloading, JobStatusTranscoding, JobStatusTagging} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
