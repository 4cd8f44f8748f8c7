// Package api exposes a scene service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"scenegraph/internal/blob"
	"scenegraph/internal/codec"
	"scenegraph/internal/core"
	"scenegraph/pkg/domain"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	svc     *core.Service
	metrics http.Handler
}

// New creates a server for svc. metrics, when non-nil, is mounted at
// /metrics.
func New(svc *core.Service, metrics http.Handler) *Server {
	return &Server{svc: svc, metrics: metrics}
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/scene", s.ExportScene)
		r.Post("/scene", s.ImportScene)
		r.Delete("/scene", s.ClearScene)

		r.Get("/nodes", s.ListNodes)
		r.Post("/nodes", s.CreateNode)
		r.Get("/nodes/{id}", s.GetNode)
		r.Delete("/nodes/{id}", s.DeleteNode)
		r.Get("/nodes/{id}/children", s.GetChildren)
		r.Get("/nodes/{id}/closure", s.GetClosure)
		r.Post("/nodes/{id}/parent", s.SetParent)
		r.Post("/nodes/{id}/move", s.MoveNode)

		r.Post("/undo/save", s.SaveUndo)
		r.Post("/undo", s.Undo)
		r.Post("/redo", s.Redo)

		r.Post("/sceneviews", s.StoreSceneView)
		r.Post("/sceneviews/{id}/restore", s.RestoreSceneView)

		r.Get("/archives", s.ListArchives)
		r.Post("/archives/{name}", s.SaveArchive)
		r.Post("/archives/{name}/load", s.LoadArchive)

		r.Post("/bundles", s.ExportBundle)
		r.Post("/bundles/import", s.ImportBundle)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// conflictResponse is the body of a 409 from a refused scene view restore.
type conflictResponse struct {
	Error          string   `json:"error"`
	WouldDeleteIDs []string `json:"would_delete_ids"`
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var conflict *domain.StaleRestoreConflictError
	var notArchived domain.ErrSceneNotArchived
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictResponse{Error: err.Error(), WouldDeleteIDs: conflict.NodeIDs})
		return
	case errors.Is(err, domain.ErrNodeNotFound), errors.Is(err, blob.ErrNotFound), errors.As(err, &notArchived):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, blob.ErrExists), errors.Is(err, domain.ErrHierarchyCycle):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrUnknownClass),
		errors.Is(err, domain.ErrSelfParent),
		errors.Is(err, domain.ErrNotHierarchical),
		errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrNothingStored),
		errors.Is(err, codec.ErrMalformed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
