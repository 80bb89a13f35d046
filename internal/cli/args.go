// Package cli is the terminal shell: argument parsing, progress output and the batch summary.
package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/pkg/filename"

	"github.com/alexflint/go-arg"
)

// Version is set at build time with -ldflags "-X audiograb/internal/cli.Version=...".
var Version = "dev"

// Args are the command line arguments.
type Args struct {
	LogLevel string    `arg:"--log-level" help:"debug, info, warn or error; overrides AUDIOGRAB_APP_LOG_LEVEL"`
	Serve    *ServeCmd `arg:"subcommand:serve" help:"run the HTTP server and web UI (default)"`
	Fetch    *FetchCmd `arg:"subcommand:fetch" help:"download a link in the terminal"`
}

// Description implements arg.Described.
func (Args) Description() string {
	return "audiograb downloads audio from YouTube videos, playlists and channels.\n"
}

// Version implements arg.Versioned.
func (Args) Version() string {
	return "audiograb " + Version
}

// ServeCmd runs the HTTP server.
type ServeCmd struct {
	Port string `arg:"--port" help:"listen address, overrides AUDIOGRAB_HTTP_PORT"`
}

// FetchCmd downloads one link in process.
type FetchCmd struct {
	URL     string `arg:"positional,required" help:"video, playlist or channel link"`
	Format  string `arg:"-f,--format" help:"mp3, m4a, wav, flac or webm; AUDIOGRAB_TRANSCODE_DEFAULT_FORMAT when empty"`
	Quality int    `arg:"-q,--quality" help:"bitrate in kbps: 128, 192, 256 or 320; AUDIOGRAB_TRANSCODE_DEFAULT_QUALITY when empty"`
	Naming  string `arg:"--naming" default:"original" help:"original, prefix or numbered"`
	Prefix  string `arg:"--prefix" help:"file name prefix for --naming prefix"`
	Output  string `arg:"-o,--output" default:"." help:"output directory"`
	Zip     bool   `arg:"--zip" help:"bundle the tracks into one ZIP in the output directory"`
	Select  string `arg:"--select" help:"1-based track numbers to fetch, e.g. 1,3,5; all when empty"`
	DryRun  bool   `arg:"--dry-run" help:"resolve the link and run the pipeline with placeholder audio"`
}

// Parse parses os.Args. Without a subcommand the server runs.
func Parse() *Args {
	var args Args

	arg.MustParse(&args)

	if args.Serve == nil && args.Fetch == nil {
		args.Serve = &ServeCmd{}
	}

	return &args
}

// Request builds the download request. Output becomes an absolute path.
func (f *FetchCmd) Request() (entity.Request, error) {
	sel, err := ParseSelect(f.Select)
	if err != nil {
		return entity.Request{}, err
	}

	out, err := filepath.Abs(f.Output)
	if err != nil {
		return entity.Request{}, fmt.Errorf("%w: %w", errs.ErrInvalidFolder, err)
	}

	req := entity.Request{
		URL:      f.URL,
		Format:   entity.Format(f.Format),
		Quality:  f.Quality,
		Naming:   filename.Naming(f.Naming),
		Prefix:   f.Prefix,
		Delivery: entity.DeliveryFolder,
		Folder:   out,
		Select:   sel,
	}

	if f.Zip {
		req.Delivery = entity.DeliveryZIP
		req.Folder = ""
	}

	return req, nil
}

// ParseSelect turns "1,3,5" into zero-based indexes.
func ParseSelect(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []int

	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errs.ErrInvalidSelection, part)
		}

		if n < 1 {
			return nil, fmt.Errorf("%w: track numbers start at 1, got %d", errs.ErrInvalidSelection, n)
		}

		out = append(out, n-1)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", errs.ErrInvalidSelection, s)
	}

	return out, nil
}
