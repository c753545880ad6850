// Package handlers exposes the coordinator over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/coordinator"
	"github.com/nijaru/yt-summarizer/db"
	apperrors "github.com/nijaru/yt-summarizer/errors"
	"github.com/nijaru/yt-summarizer/middleware"
	"github.com/nijaru/yt-summarizer/utils"
)

// Service is the coordinator as seen by the HTTP layer.
type Service interface {
	Summarize(ctx context.Context, req coordinator.SummarizeRequest) (*coordinator.SummarizeResult, error)
	ClearCache() int
	TestLocalServer(ctx context.Context, serverURL string) coordinator.LocalServerStatus
	LastSummary(ctx context.Context, videoID string) (*db.Summary, error)
	CloseSidebar(ctx context.Context, tabID string) error
}

type Options struct {
	RequestTimeout    time.Duration
	RateLimit         int
	RateLimitInterval time.Duration
}

type Handler struct {
	service Service
	opts    Options
}

func NewRouter(service Service, opts Options) http.Handler {
	h := &Handler{service: service, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.LoggingMiddleware, middleware.Recovery)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitInterval, opts.RateLimit)).Post("/summarize", h.Summarize)
		r.Post("/cache/clear", h.ClearCache)
		r.Post("/local-server/test", h.TestLocalServer)
		r.Get("/summaries/{videoID}", h.LastSummary)
		r.Post("/tabs/{tabID}/sidebar/close", h.CloseSidebar)
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req coordinator.SummarizeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.HandleError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	result, err := h.service.Summarize(ctx, req)
	if err != nil {
		if ctx.Err() != nil && r.Context().Err() == nil {
			middleware.GetLogger(r.Context()).WithError(ctx.Err()).Error("Summarize timed out")
			utils.HandleError(w, "Request timed out", http.StatusGatewayTimeout)
			return
		}
		handleServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	n := h.service.ClearCache()
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "cleared": n})
}

type localServerRequest struct {
	ServerURL string `json:"server_url"`
}

func (h *Handler) TestLocalServer(w http.ResponseWriter, r *http.Request) {
	var req localServerRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.HandleError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.service.TestLocalServer(r.Context(), req.ServerURL))
}

func (h *Handler) LastSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.LastSummary(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, s)
}

func (h *Handler) CloseSidebar(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseSidebar(r.Context(), chi.URLParam(r, "tabID")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleServiceError answers with the error's public message only; the full
// chain goes to the log.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.StatusCode(err)
	log := middleware.GetLogger(r.Context()).WithError(err).WithFields(logrus.Fields{
		"kind": apperrors.KindOf(err),
		"code": code,
	})
	if code >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Warn("Request rejected")
	}
	utils.HandleError(w, apperrors.PublicMessage(err), code)
}
