package entity

import (
	"audiograb/internal/consts"
	"audiograb/pkg/calc"
)

// Summary reports the outcome of a batch.
type Summary struct {
	Total            int      `json:"total"`
	Successful       int      `json:"successful"`
	Failed           int      `json:"failed"`
	SuccessRate      float64  `json:"successRate"`
	SuccessfulTitles []string `json:"successfulTitles"`
	FailedTitles     []string `json:"failedTitles"`
	TotalSize        int64    `json:"totalSize"`
}

// NewSummary builds a summary from processed files.
func NewSummary(files []MediaFile) Summary {
	s := Summary{
		Total:            len(files),
		SuccessfulTitles: []string{},
		FailedTitles:     []string{},
	}

	for _, f := range files {
		if f.Status == FileStatusFinished {
			s.Successful++
			s.SuccessfulTitles = append(s.SuccessfulTitles, f.Title)
			s.TotalSize += f.Size

			continue
		}

		s.Failed++
		s.FailedTitles = append(s.FailedTitles, f.Title)
	}

	s.SuccessRate = calc.SuccessRate(s.Successful, s.Total)

	return s
}

// Estimate is a pre-download size and duration guess.
type Estimate struct {
	Tracks        int   `json:"tracks"`
	EstimatedSize int64 `json:"estimatedSize"`
	TotalDuration int   `json:"totalDuration"` // seconds
}

// NewEstimate sums durations and assumes a fixed size per track.
func NewEstimate(tracks []Track) Estimate {
	e := Estimate{Tracks: len(tracks)}

	for _, t := range tracks {
		e.TotalDuration += max(t.Duration, 0)
	}

	e.EstimatedSize = int64(len(tracks)) * consts.EstimatedTrackSize

	return e
}

// Preview is the result of resolving a link before download.
type Preview struct {
	URL      string   `json:"url"`
	Kind     string   `json:"kind"`
	Title    string   `json:"title,omitempty"`
	Tracks   []Track  `json:"tracks"`
	Estimate Estimate `json:"estimate"`
}
