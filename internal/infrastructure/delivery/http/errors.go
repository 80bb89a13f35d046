package httprouter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"audiograb/internal/errs"
	"audiograb/internal/infrastructure/delivery/http/response"
)

var (
	validationErrs = []error{
		errs.ErrInvalidURL,
		errs.ErrInvalidFormat,
		errs.ErrInvalidQuality,
		errs.ErrInvalidNaming,
		errs.ErrInvalidDelivery,
		errs.ErrInvalidFolder,
		errs.ErrInvalidSelection,
		errs.ErrUnsupportedFormat,
		errs.ErrUnsupportedKind,
		errs.ErrWrongKind,
	}
	notFoundErrs = []error{
		errs.ErrJobNotFound,
		errs.ErrJobIDEmpty,
		errs.ErrFileNotFound,
		errs.ErrNoTracks,
		errs.ErrNoArchive,
	}
	conflictErrs = []error{
		errs.ErrJobNotCancellable,
		errs.ErrJobNotFinished,
	}
	unavailableErrs = []error{
		errs.ErrJobQueueFull,
		errs.ErrServiceClosed,
		errs.ErrHistoryDisabled,
	}
)

// StatusOf maps a service error onto an HTTP status.
func StatusOf(err error) int {
	is := func(targets []error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}

		return false
	}

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errs.ErrInvalidRequestBody):
		return http.StatusBadRequest
	case is(validationErrs):
		return http.StatusUnprocessableEntity
	case is(notFoundErrs):
		return http.StatusNotFound
	case is(conflictErrs):
		return http.StatusConflict
	case is(unavailableErrs):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and answers with the status it maps to. Client errors log at debug.
func (ro *Router) writeError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	status := StatusOf(err)

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	log.Log(ctx, level, msg, slog.Int("status", status), slog.Any("error", err))

	response.WriteJSON(w, status, msg, nil, err)
}
