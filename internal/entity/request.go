package entity

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"audiograb/internal/consts"
	"audiograb/internal/errs"
	"audiograb/pkg/filename"
	"audiograb/pkg/gen"
	"audiograb/pkg/ytlink"
)

// Format is an output audio container.
type Format string

// Supported formats.
const (
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatWEBM Format = "webm"
)

// Formats lists the supported formats in display order.
var Formats = []Format{FormatMP3, FormatM4A, FormatWAV, FormatFLAC, FormatWEBM}

// Qualities lists the supported bitrates in kbps.
var Qualities = []int{128, 192, 256, 320}

// Lossless reports whether bitrate settings are meaningless for f.
func (f Format) Lossless() bool {
	return f == FormatWAV || f == FormatFLAC
}

// Valid reports whether f is supported.
func (f Format) Valid() bool {
	return slices.Contains(Formats, f)
}

// Delivery is where finished files end up.
type Delivery string

// Delivery methods.
const (
	DeliveryTemp   Delivery = "temp"
	DeliveryZIP    Delivery = "zip"
	DeliveryFolder Delivery = "folder"
)

// Valid reports whether d is a known delivery method.
func (d Delivery) Valid() bool {
	return d == DeliveryTemp || d == DeliveryZIP || d == DeliveryFolder
}

// Request is a batch download request.
type Request struct {
	URL      string          `json:"url"`
	Format   Format          `json:"format,omitempty"`
	Quality  int             `json:"quality,omitempty"`
	Naming   filename.Naming `json:"naming,omitempty"`
	Prefix   string          `json:"prefix,omitempty"`
	Delivery Delivery        `json:"delivery,omitempty"`
	Folder   string          `json:"folder,omitempty"`
	// Select holds zero-based indexes into the extracted tracks. Empty selects all.
	Select []int `json:"select,omitempty"`
}

// Defaults are the format and bitrate used when a request names none.
// Zero fields fall back to the built-in mp3 at 192 kbps.
type Defaults struct {
	Format  Format
	Quality int
}

// WithDefaults returns a copy with empty fields filled in from d. A valid URL is
// reduced to its v and list parameters, so tracking parameters do not split jobs.
func (r Request) WithDefaults(d Defaults) Request {
	r.URL = strings.TrimSpace(r.URL)

	if clean, err := ytlink.Sanitize(r.URL); err == nil {
		r.URL = clean
	}

	if d.Format == "" {
		d.Format = consts.DefaultFormat
	}

	if d.Quality == 0 {
		d.Quality = consts.DefaultQuality
	}

	if r.Format == "" {
		r.Format = d.Format
	}

	r.Format = Format(strings.ToLower(string(r.Format)))

	if r.Quality == 0 {
		r.Quality = d.Quality
	}

	if r.Naming == "" {
		r.Naming = filename.NamingOriginal
	}

	if r.Naming == filename.NamingPrefix && strings.TrimSpace(r.Prefix) == "" {
		r.Prefix = filename.DefaultPrefix
	}

	if r.Delivery == "" {
		r.Delivery = DeliveryTemp
	}

	if r.Format.Lossless() {
		r.Quality = 0
	}

	if len(r.Select) > 0 {
		r.Select = slices.Clone(r.Select)
		slices.Sort(r.Select)
		r.Select = slices.Compact(r.Select)
	}

	return r
}

// Validate checks the request after defaults are applied.
func (r Request) Validate() error {
	switch {
	case !ytlink.Validate(r.URL):
		return fmt.Errorf("%w: %q", errs.ErrInvalidURL, r.URL)
	case !r.Format.Valid():
		return fmt.Errorf("%w: %q", errs.ErrInvalidFormat, r.Format)
	case !r.Format.Lossless() && !slices.Contains(Qualities, r.Quality):
		return fmt.Errorf("%w: %d", errs.ErrInvalidQuality, r.Quality)
	case !r.Naming.Valid():
		return fmt.Errorf("%w: %q", errs.ErrInvalidNaming, r.Naming)
	case !r.Delivery.Valid():
		return fmt.Errorf("%w: %q", errs.ErrInvalidDelivery, r.Delivery)
	case r.Delivery == DeliveryFolder && r.Folder == "":
		return fmt.Errorf("%w: folder is required", errs.ErrInvalidFolder)
	}

	for _, idx := range r.Select {
		if idx < 0 {
			return fmt.Errorf("%w: %d", errs.ErrInvalidSelection, idx)
		}
	}

	return nil
}

// Key identifies the job a request produces: same URL and options, same job.
func (r Request) Key() string {
	sel := make([]string, len(r.Select))
	for i, idx := range r.Select {
		sel[i] = strconv.Itoa(idx)
	}

	return gen.UUIDv5(
		ytlink.Normalize(r.URL),
		string(r.Format),
		strconv.Itoa(r.Quality),
		string(r.Naming),
		r.Prefix,
		string(r.Delivery),
		r.Folder,
		strings.Join(sel, ","),
	)
}
