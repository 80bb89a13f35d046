// Package request holds API request bodies.
package request

import (
	"strings"

	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/pkg/filename"
)

// Preview is the body of POST /v1/preview.
type Preview struct {
	URL string `json:"url"`
}

// Validate checks the body before it reaches the service.
func (p *Preview) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return errs.ErrInvalidURL
	}

	return nil
}

// Enqueue is the body of POST /v1/jobs/enqueue.
type Enqueue struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Naming   string `json:"naming"`
	Prefix   string `json:"prefix"`
	Delivery string `json:"delivery"`
	Folder   string `json:"folder"`
	// Select holds zero-based track indexes from the preview.
	Select []int `json:"select"`
}

// Validate checks the body before it reaches the service. Option values are
// validated by the service once defaults are applied.
func (e *Enqueue) Validate() error {
	if strings.TrimSpace(e.URL) == "" {
		return errs.ErrInvalidURL
	}

	return nil
}

// Request converts the body into a download request.
func (e *Enqueue) Request() entity.Request {
	return entity.Request{
		URL:      e.URL,
		Format:   entity.Format(e.Format),
		Quality:  e.Quality,
		Naming:   filename.Naming(e.Naming),
		Prefix:   e.Prefix,
		Delivery: entity.Delivery(e.Delivery),
		Folder:   e.Folder,
		Select:   e.Select,
	}
}
