// Package http provides HTTP utilities including chi-compatible error handling
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
)

// HandlerFunc defines a function that returns an error for clean error handling
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type errorResponse struct {
	ErrMsg     string `json:"error"`
	ErrMsgCode int    `json:"code"`
}

// Detailer is implemented by errors that add fields to the JSON error body.
type Detailer interface {
	Details() map[string]any
}

// HandleError wraps an error-returning HandlerFunc into a standard http.HandlerFunc.
// Internal errors are logged; the client only sees the ServiceError message.
//
//	r.Post("/scraper/{source}/incremental", http.HandleError(h.runIncremental, logger))
func HandleError(h HandlerFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			if logger != nil && apperrors.IsInternalError(err) {
				logger.Error("Request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
			DefaultErrorHandler(w, err)
		}
	}
}

// DefaultErrorHandler writes err as a JSON error body.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		var d Detailer
		if !errors.As(svcErr.Err, &d) {
			WriteJSON(w, svcErr.StatusCode(), &errorResponse{
				ErrMsg:     svcErr.Message,
				ErrMsgCode: svcErr.StatusCode(),
			})
			return
		}

		body := d.Details()
		body["error"] = svcErr.Message
		body["code"] = svcErr.StatusCode()
		WriteJSON(w, svcErr.StatusCode(), body)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, &errorResponse{
		ErrMsg:     "Unexpected Service Error",
		ErrMsgCode: http.StatusInternalServerError,
	})
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
