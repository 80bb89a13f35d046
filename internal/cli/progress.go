package cli

import (
	"fmt"
	"io"
	"sync/atomic"

	"audiograb/internal/entity"
	"audiograb/internal/service"
	"audiograb/pkg/maths"
	"audiograb/pkg/ptr"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const (
	barWidth   = 32
	titleWidth = 36
)

// Progress renders pipeline events. Observe is called from one goroutine.
type Progress interface {
	Observe(ev service.Event)
	// Wait returns once the output is flushed.
	Wait()
}

// NewProgress returns progress bars for a terminal and plain lines otherwise.
func NewProgress(w io.Writer, tty bool) Progress {
	if tty {
		return &bars{p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(barWidth), mpb.WithAutoRefresh())}
	}

	return &lines{w: w, last: make(map[int]entity.JobStatus)}
}

// bars draws one mpb bar per track.
type bars struct {
	p      *mpb.Progress
	bars   []*mpb.Bar
	stages []*atomic.Pointer[string]
}

func (b *bars) Observe(ev service.Event) {
	switch {
	case ev.Tracks != nil && b.bars == nil:
		for _, t := range ev.Tracks {
			b.add(t)
		}
	case ev.Index >= 0 && ev.Index < len(b.bars):
		bar, stage := b.bars[ev.Index], b.stages[ev.Index]

		if ev.File == nil {
			stage.Store(ptr.Of(string(ev.Status)))
			bar.SetCurrent(int64(maths.Clamp(ev.Percent, 0, 100)))

			return
		}

		if ev.File.Status == entity.FileStatusFinished {
			stage.Store(ptr.Of("done"))
			bar.SetCurrent(100)

			return
		}

		stage.Store(ptr.Of("failed"))
		bar.Abort(false)
	case ev.Status.Terminal():
		for _, bar := range b.bars {
			if !bar.Completed() {
				bar.Abort(false)
			}
		}
	}
}

func (b *bars) add(t entity.Track) {
	stage := &atomic.Pointer[string]{}
	stage.Store(ptr.Of("queued"))

	bar := b.p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("%3d ", t.Index)),
			decor.Name(truncate(t.Title, titleWidth), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Any(func(decor.Statistics) string { return " " + ptr.Deref(stage.Load()) }),
		),
	)

	b.bars = append(b.bars, bar)
	b.stages = append(b.stages, stage)
}

func (b *bars) Wait() {
	b.p.Wait()
}

// lines prints one line per stage change.
type lines struct {
	w      io.Writer
	tracks []entity.Track
	last   map[int]entity.JobStatus
}

func (l *lines) Observe(ev service.Event) {
	switch {
	case ev.Tracks != nil:
		l.tracks = ev.Tracks
		clear(l.last)

		fmt.Fprintf(l.w, "found %d track(s)\n", len(ev.Tracks))
	case ev.Index < 0:
		if ev.Status == entity.JobStatusExtracting {
			fmt.Fprintln(l.w, "resolving link")
		}
	case ev.File != nil:
		if ev.File.Status == entity.FileStatusFinished {
			fmt.Fprintf(l.w, "[%d/%d] %s: done\n", ev.Index+1, len(l.tracks), ev.Track.Title)
		} else {
			fmt.Fprintf(l.w, "[%d/%d] %s: failed: %s\n", ev.Index+1, len(l.tracks), ev.Track.Title, ev.File.Error)
		}
	case l.last[ev.Index] != ev.Status:
		l.last[ev.Index] = ev.Status

		fmt.Fprintf(l.w, "[%d/%d] %s: %s\n", ev.Index+1, len(l.tracks), ev.Track.Title, ev.Status)
	}
}

func (l *lines) Wait() {}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}
