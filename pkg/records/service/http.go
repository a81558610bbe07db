package service

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
	apphttp "github.com/james-langridge/mars-vista-api-sub000/pkg/app/http"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the record endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Get("/records", apphttp.HandleError(h.listRecords, logger))
	r.Get("/sources", apphttp.HandleError(h.sources, logger))
}

func (h *HTTP) listRecords(w http.ResponseWriter, r *http.Request) error {
	params := r.URL.Query()
	q := Query{
		Source:     params.Get("source"),
		IncludeRaw: params.Get("include_raw") == "true",
	}

	if raw := params.Get("window"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperrors.BadRequestError(err, "window must be an integer")
		}
		q.Window = &n
	}
	if raw := params.Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperrors.BadRequestError(err, "after must be an integer")
		}
		q.After = n
	}
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.BadRequestError(err, "limit must be an integer")
		}
		q.Limit = n
	}

	page, err := h.service.ListRecords(r.Context(), q)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, page)
	return nil
}

func (h *HTTP) sources(w http.ResponseWriter, r *http.Request) error {
	out, err := h.service.Sources(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, out)
	return nil
}
