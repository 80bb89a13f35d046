// Package tagger writes and reads audio file tags with TagLib.
package tagger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"go.senan.xyz/taglib"

	"audiograb/internal/entity"
	"audiograb/internal/errs"
)

// Tags are the fields written after transcoding. Empty fields are left untouched on disk.
type Tags struct {
	Title   string
	Artist  string
	Album   string
	Date    string
	Comment string
	Track   int
}

// Metadata is what Read reports about a file.
type Metadata struct {
	Filename   string              `json:"filename"`
	Size       int64               `json:"size"`
	Duration   int                 `json:"duration"` // seconds
	Bitrate    int                 `json:"bitrate"`  // kbps
	SampleRate int                 `json:"sampleRate"`
	Channels   int                 `json:"channels"`
	Tags       map[string][]string `json:"tags"`
}

// Tagger writes and reads tags.
type Tagger interface {
	Write(path string, tags Tags) error
	Read(path string) (Metadata, error)
}

// TagLib is a Tagger backed by go.senan.xyz/taglib.
type TagLib struct {
	log *slog.Logger
}

// New creates a TagLib tagger.
func New(log *slog.Logger) *TagLib {
	return &TagLib{log: log.With(slog.String("package", "tagger"))}
}

// TagsFor derives tags from a track. The album and track number are only set for playlist entries.
func TagsFor(t entity.Track) Tags {
	tags := Tags{
		Title:   t.Title,
		Artist:  t.Uploader,
		Album:   t.PlaylistTitle,
		Date:    t.Year(),
		Comment: t.URL,
	}

	if t.PlaylistTitle != "" {
		tags.Track = t.Index
	}

	return tags
}

// Map returns the TagLib property map holding only the non-empty fields.
func (t Tags) Map() map[string][]string {
	m := make(map[string][]string)

	set := func(key, value string) {
		if value != "" {
			m[key] = []string{value}
		}
	}

	set(taglib.Title, t.Title)
	set(taglib.Artist, t.Artist)
	set(taglib.Album, t.Album)
	set(taglib.Date, t.Date)
	set(taglib.Comment, t.Comment)

	if t.Track > 0 {
		set(taglib.TrackNumber, strconv.Itoa(t.Track))
	}

	return m
}

// Write implements Tagger. Existing tags not present in tags are preserved.
func (tl *TagLib) Write(path string, tags Tags) error {
	m := tags.Map()
	if len(m) == 0 {
		return nil
	}

	// No taglib.Clear: keys absent from m keep their values.
	if err := taglib.WriteTags(path, m, 0); err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrTagFailed, filepath.Base(path), err)
	}

	tl.log.Debug("tags written", slog.String("path", path), slog.Int("fields", len(m)))

	return nil
}

// Read implements Tagger.
func (tl *TagLib) Read(path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", errs.ErrFileNotFound, err)
	}

	tags, err := taglib.ReadTags(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: read tags: %w", errs.ErrTagFailed, err)
	}

	props, err := taglib.ReadProperties(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: read properties: %w", errs.ErrTagFailed, err)
	}

	return Metadata{
		Filename:   filepath.Base(path),
		Size:       info.Size(),
		Duration:   int(props.Length.Seconds()),
		Bitrate:    int(props.Bitrate),
		SampleRate: int(props.SampleRate),
		Channels:   int(props.Channels),
		Tags:       tags,
	}, nil
}

// Nop is a Tagger that writes nothing and reads only file stats.
type Nop struct{}

// Write implements Tagger.
func (Nop) Write(string, Tags) error { return nil }

// Read implements Tagger.
func (Nop) Read(path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", errs.ErrFileNotFound, err)
	}

	return Metadata{Filename: filepath.Base(path), Size: info.Size(), Tags: map[string][]string{}}, nil
}
