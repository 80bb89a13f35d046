// Package transcoder converts downloaded audio with ffmpeg and probes it with ffprobe.
package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"audiograb/internal/depmanager"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/pkg/calc"
	"audiograb/pkg/shellquote"
)

// ffmpeg and ffprobe invocation constants.
const (
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration,bit_rate,format_name:stream=codec_name,bit_rate"
	FFprobeOutputFormat = "json"
	ProgressPipeTarget  = "pipe:2"
	ProgressTimeKey     = "out_time_us"
	ProgressTimeKeyMS   = "out_time_ms" // same value as out_time_us in current ffmpeg
	ProgressStateKey    = "progress"
	ProgressStateEnd    = "end"
)

const (
	fullProgress = 100
	// stderrTail is how many stderr lines are kept for error messages.
	stderrTail = 8
	// maxStderrLine bounds one scanned stderr line. Longer output is drained unparsed.
	maxStderrLine = 1 << 20
)

// codec is the ffmpeg encoder for a format and the codec name ffprobe reports for its output.
type codec struct {
	encoder string
	name    string
	extra   []string
}

var codecs = map[entity.Format]codec{
	entity.FormatMP3:  {encoder: "libmp3lame", name: "mp3", extra: []string{"-id3v2_version", "3"}},
	entity.FormatM4A:  {encoder: "aac", name: "aac", extra: []string{"-movflags", "+faststart"}},
	entity.FormatWEBM: {encoder: "libopus", name: "opus"},
	entity.FormatFLAC: {encoder: "flac", name: "flac"},
	entity.FormatWAV:  {encoder: "pcm_s16le", name: "pcm_s16le"},
}

// Probe describes an audio file.
type Probe struct {
	Duration time.Duration `json:"duration"`
	Codec    string        `json:"codec"`
	Bitrate  int           `json:"bitrate"` // kbps
	Format   string        `json:"format"`  // ffprobe format_name, e.g. "matroska,webm"
}

// Params is one conversion.
type Params struct {
	Input   string
	Output  string
	Format  entity.Format
	Quality int // kbps, ignored for lossless formats
}

// ProgressFunc receives conversion progress 0..100. It may be nil.
type ProgressFunc func(percent int)

// Transcoder converts and probes audio files.
type Transcoder interface {
	Probe(ctx context.Context, path string) (Probe, error)
	Transcode(ctx context.Context, p Params, progress ProgressFunc) (string, error)
}

// FFmpeg is a Transcoder running the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	log  *slog.Logger
	bins depmanager.Resolver
}

// New creates an ffmpeg backed transcoder.
func New(log *slog.Logger, bins depmanager.Resolver) *FFmpeg {
	if bins == nil {
		bins = depmanager.Static{}
	}

	return &FFmpeg{
		log:  log.With(slog.String("package", "transcoder")),
		bins: bins,
	}
}

// Ext returns the file extension for f including the dot.
func Ext(f entity.Format) string {
	return "." + string(f)
}

// Supported reports whether f has an encoder.
func Supported(f entity.Format) bool {
	_, ok := codecs[f]

	return ok
}

// Probe implements Transcoder.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Probe, error) {
	args := []string{
		"-v", FFprobeLogLevel,
		"-select_streams", "a:0",
		"-show_entries", FFprobeShowEntries,
		"-of", FFprobeOutputFormat,
		path,
	}

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, f.bins.Path(depmanager.BinaryFFprobe), args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return Probe{}, fmt.Errorf("%w: %w: %s", errs.ErrProbeFailed, err, strings.TrimSpace(stderr.String()))
	}

	return ParseProbe(out)
}

type probeJSON struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		BitRate   string `json:"bit_rate"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// ParseProbe decodes ffprobe's JSON output. Missing numeric fields stay zero.
func ParseProbe(out []byte) (Probe, error) {
	var raw probeJSON

	if err := json.Unmarshal(out, &raw); err != nil {
		return Probe{}, fmt.Errorf("%w: decode: %w", errs.ErrProbeFailed, err)
	}

	p := Probe{Format: raw.Format.FormatName}

	if secs, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil && secs > 0 {
		p.Duration = time.Duration(secs * float64(time.Second))
	}

	bitrate := raw.Format.BitRate

	if len(raw.Streams) > 0 {
		p.Codec = raw.Streams[0].CodecName

		if raw.Streams[0].BitRate != "" {
			bitrate = raw.Streams[0].BitRate
		}
	}

	if bps, err := strconv.Atoi(bitrate); err == nil {
		p.Bitrate = bps / 1000
	}

	return p, nil
}

// Transcode implements Transcoder. The output file is removed when conversion fails or is cancelled.
func (f *FFmpeg) Transcode(ctx context.Context, p Params, progress ProgressFunc) (string, error) {
	log := f.log.With(slog.String("input", p.Input), slog.String("output", p.Output))

	if !Supported(p.Format) {
		return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, p.Format)
	}

	if samePath(p.Input, p.Output) {
		return "", fmt.Errorf("%w: input and output are the same file", errs.ErrTranscodeFailed)
	}

	probe, err := f.Probe(ctx, p.Input)
	if err != nil {
		log.WarnContext(ctx, "probe failed, progress unavailable", slog.Any("error", err))
	}

	args, err := Args(p, probe)
	if err != nil {
		return "", err
	}

	bin := f.bins.Path(depmanager.BinaryFFmpeg)
	log.DebugContext(ctx, "running ffmpeg", slog.String("cmd", shellquote.Join(bin, args)))

	if err := f.run(ctx, bin, args, probe.Duration, progress); err != nil {
		os.Remove(p.Output)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("transcode: %w", ctxErr)
		}

		return "", err
	}

	if progress != nil {
		progress(fullProgress)
	}

	return p.Output, nil
}

// Args builds the ffmpeg arguments for p. Streams already in the requested codec are
// copied when no bitrate change is asked for.
func Args(p Params, in Probe) ([]string, error) {
	c, ok := codecs[p.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, p.Format)
	}

	args := []string{"-hide_banner", "-nostdin", "-y", "-i", p.Input, "-vn", "-map", "0:a:0"}

	if CanCopy(p, in) {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", c.encoder)

		if !p.Format.Lossless() && p.Quality > 0 {
			args = append(args, "-b:a", strconv.Itoa(p.Quality)+"k")
		}
	}

	args = append(args, c.extra...)
	args = append(args, "-progress", ProgressPipeTarget, "-nostats", p.Output)

	return args, nil
}

// CanCopy reports whether the input stream can be remuxed without re-encoding.
func CanCopy(p Params, in Probe) bool {
	c, ok := codecs[p.Format]
	if !ok || in.Codec != c.name {
		return false
	}

	return p.Format.Lossless() || p.Quality <= 0 || p.Quality == in.Bitrate
}

func (f *FFmpeg) run(ctx context.Context, bin string, args []string, duration time.Duration, progress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, bin, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %w", errs.ErrTranscodeFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start: %w", errs.ErrTranscodeFailed, err)
	}

	tail := ParseProgress(stderr, duration, progress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %w: %s", errs.ErrTranscodeFailed, err, strings.Join(tail, " | "))
	}

	return nil
}

// ParseProgress consumes ffmpeg "-progress" output, reporting percent of duration,
// and returns the last non-progress lines for diagnostics. r is always read to EOF
// so ffmpeg never blocks on a full pipe.
func ParseProgress(r io.Reader, duration time.Duration, progress ProgressFunc) []string {
	var (
		tail []string
		last = -1
	)

	defer func() { _, _ = io.Copy(io.Discard, r) }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.ContainsAny(key, " \t") {
			if line != "" {
				tail = append(tail, line)
				if len(tail) > stderrTail {
					tail = tail[1:]
				}
			}

			continue
		}

		pct := -1

		switch key {
		case ProgressTimeKey, ProgressTimeKeyMS:
			us, err := strconv.ParseInt(value, 10, 64)
			if err == nil && duration > 0 {
				pct = min(calc.Progress(us, duration.Microseconds()), fullProgress-1)
			}
		case ProgressStateKey:
			if value == ProgressStateEnd {
				pct = fullProgress
			}
		}

		if pct > last && progress != nil {
			progress(pct)
			last = pct
		}
	}

	if err := scanner.Err(); err != nil {
		tail = append(tail, "stderr: "+err.Error())
	}

	return tail
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	if errA != nil || errB != nil {
		return a == b
	}

	return absA == absB
}

// Copy is a Transcoder that copies input to output unchanged. It serves dry runs and tests.
type Copy struct{}

// Probe implements Transcoder.
func (Copy) Probe(_ context.Context, path string) (Probe, error) {
	if _, err := os.Stat(path); err != nil {
		return Probe{}, fmt.Errorf("%w: %w", errs.ErrProbeFailed, err)
	}

	return Probe{}, nil
}

// Transcode implements Transcoder.
func (Copy) Transcode(ctx context.Context, p Params, progress ProgressFunc) (string, error) {
	if !Supported(p.Format) {
		return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, p.Format)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(p.Input)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrTranscodeFailed, err)
	}

	if err := os.WriteFile(p.Output, data, 0o644); err != nil {
		return "", errors.Join(errs.ErrTranscodeFailed, err)
	}

	if progress != nil {
		progress(fullProgress)
	}

	return p.Output, nil
}
