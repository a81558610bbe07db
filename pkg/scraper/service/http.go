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

// RegisterRoutes registers the scraper endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Route("/scraper", func(r chi.Router) {
		r.Get("/status", apphttp.HandleError(h.statusAll, logger))
		r.Post("/run", apphttp.HandleError(h.runAll, logger))
		r.Post("/{source}/incremental", apphttp.HandleError(h.runIncremental, logger))
		r.Get("/{source}/status", apphttp.HandleError(h.status, logger))
		r.Post("/{source}/reset-state", apphttp.HandleError(h.resetState, logger))
	})
}

func (h *HTTP) runIncremental(w http.ResponseWriter, r *http.Request) error {
	var lookback *int
	if raw := r.URL.Query().Get("lookback"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.BadRequestError(err, "lookback must be an integer")
		}
		lookback = &n
	}

	out, err := h.service.RunIncremental(r.Context(), chi.URLParam(r, "source"), lookback)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, out)
	return nil
}

func (h *HTTP) runAll(w http.ResponseWriter, r *http.Request) error {
	results, err := h.service.RunAll(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, results)
	return nil
}

func (h *HTTP) status(w http.ResponseWriter, r *http.Request) error {
	c, err := h.service.Status(r.Context(), chi.URLParam(r, "source"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, c)
	return nil
}

func (h *HTTP) statusAll(w http.ResponseWriter, r *http.Request) error {
	cs, err := h.service.StatusAll(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, cs)
	return nil
}

func (h *HTTP) resetState(w http.ResponseWriter, r *http.Request) error {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return apperrors.BadRequestError(nil, "window is required")
	}
	window, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return apperrors.BadRequestError(err, "window must be an integer")
	}

	c, err := h.service.ResetState(r.Context(), chi.URLParam(r, "source"), window)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, c)
	return nil
}
