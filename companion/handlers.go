package companion

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/middleware"
	"github.com/nijaru/yt-summarizer/utils"
	"github.com/nijaru/yt-summarizer/validation"
)

type transcriptRequest struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id"`
}

func NewHandler(svc Transcriber) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.LoggingMiddleware, middleware.Recovery)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"service":                      ServiceName,
			"version":                      Version,
			"youtube_transcript_available": svc != nil,
		})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	h := &transcriptHandler{svc: svc}
	r.Get("/api/transcript", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, firstNonEmpty(r.URL.Query().Get("url"), r.URL.Query().Get("video_id")))
	})
	r.Post("/api/transcript", func(w http.ResponseWriter, r *http.Request) {
		var req transcriptRequest
		// A missing or malformed body is treated like an empty request.
		_ = utils.DecodeJSON(r, &req)
		h.serve(w, r, firstNonEmpty(req.URL, req.VideoID))
	})
	return r
}

type transcriptHandler struct {
	svc Transcriber
}

func (h *transcriptHandler) serve(w http.ResponseWriter, r *http.Request, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		utils.HandleError(w, "URL or video_id is required", http.StatusBadRequest)
		return
	}
	videoID, ok := validation.ResolveVideoID(input)
	if !ok {
		utils.HandleError(w, "Invalid YouTube URL or video ID", http.StatusBadRequest)
		return
	}

	log := middleware.GetLogger(r.Context()).WithField("video_id", videoID)
	t, err := h.svc.Transcript(r.Context(), videoID)
	if err != nil {
		log.WithError(err).Warn("Companion transcript failed")
		utils.HandleError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.WithFields(logrus.Fields{
		"segments": len(t.Segments),
		"length":   len(t.Transcript),
	}).Info("Companion transcript served")
	utils.RespondWithJSON(w, http.StatusOK, t)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
