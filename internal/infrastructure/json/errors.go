package json

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, err error, msg string) {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	Write(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
	})
}

func WriteValidationError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusBadRequest, err, err.Error())
}

func WriteBadRequestError(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusBadRequest, errors.New("bad request"), msg)
}

func WriteForbiddenError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusForbidden, err, err.Error())
}

func WriteNotFoundError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusNotFound, err, err.Error())
}

func WriteConflictError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusConflict, err, err.Error())
}

func WriteInternalError(w http.ResponseWriter, logger logging.Logger, err error) {
	if logger != nil {
		logger.Error(logging.RequestResponse, logging.Api, "internal error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	WriteError(w, http.StatusInternalServerError, err, "An unexpected error occurred")
}

func WriteRateLimitError(w http.ResponseWriter, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	Write(w, http.StatusTooManyRequests, ErrorResponse{
		Error:   http.StatusText(http.StatusTooManyRequests),
		Message: "Too many requests. Please try again later.",
	})
}
