// Package admin serves the local diagnostics and control API.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/ingest"
	"github.com/RenatoCabral2022/mirror-renderer/internal/renderer"
	"github.com/RenatoCabral2022/mirror-renderer/internal/session"
)

// Session is the part of a mirroring session the API drives.
type Session interface {
	Statuses() []renderer.Status
	Reconfigure(kind ingest.Kind, d codec.Descriptor) error
}

type formatRequest struct {
	Codec string `json:"codec"`
	// Config is the base64 codec init blob (AudioSpecificConfig or ALAC
	// cookie). Empty selects the codec default.
	Config []byte `json:"config,omitempty"`
}

type renderersResponse struct {
	Renderers []renderer.Status `json:"renderers"`
	Ingest    *ingest.Status    `json:"ingest,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	sess   Session
	src    ingest.Source
	logger *zap.Logger
}

// NewRouter builds the admin router. src may be nil.
func NewRouter(sess Session, src ingest.Source, logger *zap.Logger) http.Handler {
	h := &Handlers{sess: sess, src: src, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/renderers", h.ListRenderers)
		r.Post("/audio/format", h.SetAudioFormat)
	})
	return r
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ListRenderers handles GET /v1/renderers.
func (h *Handlers) ListRenderers(w http.ResponseWriter, r *http.Request) {
	resp := renderersResponse{Renderers: h.sess.Statuses()}
	if h.src != nil {
		st := h.src.Status()
		resp.Ingest = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetAudioFormat handles POST /v1/audio/format and reconfigures the audio
// renderer to the requested codec.
func (h *Handlers) SetAudioFormat(w http.ResponseWriter, r *http.Request) {
	var req formatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := codec.ParseID(req.Codec)
	if err != nil || !id.IsAudio() {
		writeError(w, http.StatusBadRequest, "codec must be one of alac, aac-lc, aac-eld, pcm, opus")
		return
	}
	d, err := codec.Describe(id, req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sess.Reconfigure(ingest.KindAudio, d); err != nil {
		switch {
		case errors.Is(err, session.ErrNoRenderer):
			writeError(w, http.StatusNotFound, "audio is disabled")
		case errors.Is(err, renderer.ErrDestroyed):
			writeError(w, http.StatusConflict, "audio renderer destroyed")
		default:
			h.logger.Error("audio reconfigure failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, renderersResponse{Renderers: h.sess.Statuses()})
}

// Logging logs one line per request with zap.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("admin request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("requestId", chimw.GetReqID(r.Context())),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
