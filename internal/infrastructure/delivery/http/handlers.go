package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"audiograb/internal/consts"
	"audiograb/internal/errs"
	"audiograb/internal/history"
	"audiograb/internal/infrastructure/delivery/http/request"
	"audiograb/internal/infrastructure/delivery/http/response"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// HistoryData is the payload of GET /v1/history.
type HistoryData struct {
	Entries []history.Entry `json:"entries"`
	Stats   history.Stats   `json:"stats"`
}

func (ro *Router) handlerContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := ro.cfg.HTTP.HandlerTimeout
	if timeout <= 0 {
		timeout = consts.DefaultHandlerTimeout
	}

	return context.WithTimeout(r.Context(), timeout)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidRequestBody, err)
	}

	return nil
}

// Preview resolves a link into tracks and an estimate.
func (ro *Router) Preview(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "Preview"))

	ctx, cancel := ro.handlerContext(r)
	defer cancel()

	var in request.Preview
	if err := decode(w, r, &in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	preview, err := ro.svc.Preview(ctx, in.URL)
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespPreviewFail, err)

		return
	}

	response.OK(w, consts.RespPreviewReady, preview, nil)
}

// Enqueue queues a download job. A new job answers 202 with its UUID, an active
// job for the same request answers 200 with the existing UUID.
func (ro *Router) Enqueue(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "Enqueue"))
	ctx := r.Context()

	var in request.Enqueue
	if err := decode(w, r, &in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	job, err := ro.svc.Enqueue(ctx, in.Request())
	if errors.Is(err, errs.ErrJobAlreadyExists) {
		log.DebugContext(ctx, consts.RespJobAlreadyExists, slog.String("job_id", job.UUID))
		response.OK(w, consts.RespJobAlreadyExists, job.UUID, nil)

		return
	}

	if err != nil {
		ro.writeError(ctx, w, log, consts.RespJobEnqueueFail, err)

		return
	}

	log.InfoContext(ctx, consts.RespJobEnqueued, slog.Any("job", job))

	response.Accepted(w, consts.RespJobEnqueued, job.UUID, nil)
}

// GetJob returns one job.
func (ro *Router) GetJob(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "GetJob"))

	ctx, cancel := ro.handlerContext(r)
	defer cancel()

	job, err := ro.svc.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespGetJobFail, err)

		return
	}

	response.OK(w, consts.RespJobRetrieved, job, nil)
}

// GetJobs returns every stored job, newest first.
func (ro *Router) GetJobs(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "GetJobs"))

	ctx, cancel := ro.handlerContext(r)
	defer cancel()

	jobs, err := ro.svc.GetAll(ctx)
	if errors.Is(err, errs.ErrNoJobs) {
		log.DebugContext(ctx, consts.RespNoJobs)
		response.NoContent(w)

		return
	}

	if err != nil {
		ro.writeError(ctx, w, log, consts.RespGetJobsFail, err)

		return
	}

	response.OK(w, consts.RespJobsRetrieved, jobs, nil)
}

// CancelJob cancels a queued or running job.
func (ro *Router) CancelJob(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "CancelJob"))

	ctx, cancel := ro.handlerContext(r)
	defer cancel()

	id := r.PathValue("id")

	if err := ro.svc.Cancel(ctx, id); err != nil {
		ro.writeError(ctx, w, log, consts.RespJobCancelFail, err)

		return
	}

	log.InfoContext(ctx, consts.RespJobCancelled, slog.String("job_id", id))

	response.OK(w, consts.RespJobCancelled, id, nil)
}

// GetArchive serves the ZIP of a finished zip delivery.
func (ro *Router) GetArchive(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "GetArchive"))
	ctx := r.Context()

	path, err := ro.svc.Archive(ctx, r.PathValue("id"))
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespArchiveNotReady, err)

		return
	}

	ro.serveAttachment(w, r, log, path)
}

// GetFile serves one processed track as an attachment.
func (ro *Router) GetFile(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "GetFile"))
	ctx := r.Context()

	file, err := ro.svc.File(ctx, r.PathValue("id"))
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespFileNotFound, err)

		return
	}

	ro.serveAttachment(w, r, log, file.Filename)
}

// GetMetadata returns tags and audio properties of a processed track.
func (ro *Router) GetMetadata(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "GetMetadata"))

	ctx, cancel := ro.handlerContext(r)
	defer cancel()

	md, err := ro.svc.Metadata(ctx, r.PathValue("id"))
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespMetadataFail, err)

		return
	}

	response.OK(w, consts.RespMetadataRetrieved, md, nil)
}

// History returns recent downloads and totals. ?limit=N bounds the rows.
func (ro *Router) History(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "History"))

	ctx, cancel := ro.handlerContext(r)
	defer cancel()

	var limit int

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			log.ErrorContext(ctx, consts.RespQueryParamMissing, slog.String("limit", raw))
			response.BadRequest(w, consts.RespQueryParamMissing, fmt.Errorf("limit %q is not a non-negative integer", raw))

			return
		}

		limit = n
	}

	entries, stats, err := ro.svc.History(ctx, limit)
	if err != nil {
		msg := consts.RespHistoryFail
		if errors.Is(err, errs.ErrHistoryDisabled) {
			msg = consts.RespHistoryDisabled
		}

		ro.writeError(ctx, w, log, msg, err)

		return
	}

	response.OK(w, consts.RespHistoryRetrieved, HistoryData{Entries: entries, Stats: stats}, nil)
}

func (ro *Router) serveAttachment(w http.ResponseWriter, r *http.Request, log *slog.Logger, path string) {
	f, err := os.Open(path)
	if err != nil {
		ro.writeError(r.Context(), w, log, consts.RespFileNotFound, fmt.Errorf("%w: %w", errs.ErrFileNotFound, err))

		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.InternalServerError(w, consts.RespFileNotFound, nil, err)

		return
	}

	name := filepath.Base(path)

	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	http.ServeContent(w, r, name, info.ModTime(), f)
}
