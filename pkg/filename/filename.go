// Package filename turns track titles into safe, unique file names.
package filename

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest name Sanitize and Clean return, in bytes.
const MaxLength = 255

// Fallback names for inputs that sanitise to nothing.
const (
	UnnamedFile   = "unnamed_file"
	UnnamedVideo  = "unnamed_video"
	DefaultPrefix = "audio"
	trackPrefix   = "track"
)

// maxUnique bounds the suffix search in Unique.
const maxUnique = 10000

// Naming is the strategy used to derive file names for a batch.
type Naming string

// Naming strategies.
const (
	NamingOriginal Naming = "original"
	NamingPrefix   Naming = "prefix"
	NamingNumbered Naming = "numbered"
)

// Valid reports whether n is a known strategy.
func (n Naming) Valid() bool {
	switch n {
	case NamingOriginal, NamingPrefix, NamingNumbered:
		return true
	default:
		return false
	}
}

// ErrNoUniqueName is returned when every candidate name in a directory is taken.
var ErrNoUniqueName = errors.New("no unique file name available")

var (
	reUnsafe     = regexp.MustCompile(`[^A-Za-z0-9_\-. ]`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reTitleChars = regexp.MustCompile(`[\\/*?:"<>|]`)
)

// Sanitize makes name safe on every common filesystem.
// Unicode is decomposed and reduced to ASCII, anything but letters, digits,
// '-', '_', '.' and space becomes '_', and surrounding dots and spaces are trimmed.
func Sanitize(name string) string {
	name = toASCII(name)
	name = reUnsafe.ReplaceAllString(name, "_")
	name = reSpaces.ReplaceAllString(name, " ")
	name = truncate(strings.Trim(name, ". "), MaxLength)

	if name == "" {
		return UnnamedFile
	}

	return name
}

// Clean strips characters that are invalid in file names and joins words with '_'.
func Clean(title string) string {
	title = reTitleChars.ReplaceAllString(title, "")
	title = reSpaces.ReplaceAllString(title, "_")
	title = strings.Trim(truncate(title, MaxLength), ". ")

	if title == "" {
		return UnnamedVideo
	}

	return title
}

// Unique returns a path in dir for name.ext that does not exist yet,
// trying name.ext, name_1.ext, name_2.ext and so on. name is sanitised first.
func Unique(dir, name, ext string) (string, error) {
	name = Sanitize(name)
	ext = normalizeExt(ext)

	candidate := filepath.Join(dir, name+ext)

	for i := 1; i <= maxUnique; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}

		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}

		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, i, ext))
	}

	return "", fmt.Errorf("%s in %s: %w", name+ext, dir, ErrNoUniqueName)
}

// Titles derives one base name per title for the given strategy.
// Numbering is 1-based. An empty prefix falls back to DefaultPrefix.
func Titles(titles []string, naming Naming, prefix string) []string {
	out := make([]string, len(titles))

	for i, title := range titles {
		switch naming {
		case NamingPrefix:
			p := strings.TrimSpace(prefix)
			if p == "" {
				p = DefaultPrefix
			}

			out[i] = fmt.Sprintf("%s_%d", p, i+1)
		case NamingNumbered:
			out[i] = fmt.Sprintf("%s_%d", trackPrefix, i+1)
		default:
			out[i] = title
		}
	}

	return out
}

// WithAffixes builds prefix_title_suffix from a cleaned title, skipping empty parts.
func WithAffixes(title, prefix, suffix string) string {
	full := strings.Trim(prefix+"_"+Clean(title)+"_"+suffix, "_")

	return Clean(full)
}

func toASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))

	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}

	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}

	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func normalizeExt(ext string) string {
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}

	return "." + ext
}
