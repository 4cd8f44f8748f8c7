package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scenegraph/internal/core"
	"scenegraph/pkg/domain"
)

// ListNodes handles GET /api/nodes, optionally filtered by ?class=
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("class")
	var views []core.NodeView
	err := s.svc.View(r.Context(), func(sc *core.Scene) error {
		nodes := sc.Nodes()
		if class != "" {
			nodes = sc.NodesByClass(class)
		}
		views = make([]core.NodeView, 0, len(nodes))
		for _, n := range nodes {
			views = append(views, core.Describe(n))
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetNode handles GET /api/nodes/{id}
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var view core.NodeView
	err := s.svc.View(r.Context(), func(sc *core.Scene) error {
		n := sc.NodeByID(id)
		if n == nil {
			return domain.NotFoundError{ID: id}
		}
		view = core.Describe(n)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetChildren handles GET /api/nodes/{id}/children. The id "root" lists
// top level hierarchy nodes.
func (s *Server) GetChildren(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var views []core.NodeView
	err := s.svc.View(r.Context(), func(sc *core.Scene) error {
		parent := id
		if id == "root" {
			parent = ""
		} else if sc.NodeByID(id) == nil {
			return domain.NotFoundError{ID: id}
		}
		children := sc.ChildrenOf(parent)
		views = make([]core.NodeView, 0, len(children))
		for _, c := range children {
			views = append(views, core.Describe(c))
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetClosure handles GET /api/nodes/{id}/closure. ?recursive=false limits
// the result to direct references.
func (s *Server) GetClosure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recursive := r.URL.Query().Get("recursive") != "false"
	var views []core.NodeView
	err := s.svc.View(r.Context(), func(sc *core.Scene) error {
		n := sc.NodeByID(id)
		if n == nil {
			return domain.NotFoundError{ID: id}
		}
		closure := sc.ReferencedClosure(n, recursive)
		views = make([]core.NodeView, 0, len(closure))
		for _, c := range closure {
			views = append(views, core.Describe(c))
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateNodeRequest is the request body for creating a node
type CreateNodeRequest struct {
	Class string `json:"class"`
	Name  string `json:"name"`
}

// CreateNode handles POST /api/nodes
func (s *Server) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Class == "" {
		http.Error(w, "class is required", http.StatusBadRequest)
		return
	}
	view, err := s.svc.CreateNode(r.Context(), req.Class, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// DeleteNode handles DELETE /api/nodes/{id}
func (s *Server) DeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveNode(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetParentRequest names the new parent; empty moves the node to the root.
type SetParentRequest struct {
	ParentID string `json:"parent_id"`
}

// SetParent handles POST /api/nodes/{id}/parent
func (s *Server) SetParent(w http.ResponseWriter, r *http.Request) {
	var req SetParentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.svc.Reparent(r.Context(), chi.URLParam(r, "id"), req.ParentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveRequest shifts a node among its siblings by Delta positions.
type MoveRequest struct {
	Delta int `json:"delta"`
}

// MoveNode handles POST /api/nodes/{id}/move
func (s *Server) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.svc.MoveWithinParent(r.Context(), chi.URLParam(r, "id"), req.Delta); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveUndo handles POST /api/undo/save
func (s *Server) SaveUndo(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.SaveStateForUndo(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type appliedResponse struct {
	Applied bool `json:"applied"`
}

// Undo handles POST /api/undo
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	applied, err := s.svc.Undo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

// Redo handles POST /api/redo
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	applied, err := s.svc.Redo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

// StoreSceneViewRequest is the request body for capturing a scene view.
type StoreSceneViewRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StoreSceneView handles POST /api/sceneviews
func (s *Server) StoreSceneView(w http.ResponseWriter, r *http.Request) {
	var req StoreSceneViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := s.svc.StoreSceneView(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// RestoreSceneView handles POST /api/sceneviews/{id}/restore?force=true.
// Without force a restore that would delete nodes answers 409 with their IDs.
func (s *Server) RestoreSceneView(w http.ResponseWriter, r *http.Request) {
	force, err := queryBool(r, "force")
	if err != nil {
		http.Error(w, "invalid force parameter", http.StatusBadRequest)
		return
	}
	if err := s.svc.RestoreSceneView(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportScene handles GET /api/scene
func (s *Server) ExportScene(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.svc.Export(r.Context(), &buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", core.BundleContentType)
	_, _ = buf.WriteTo(w)
}

// ImportScene handles POST /api/scene with a serialized scene body.
func (s *Server) ImportScene(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Import(r.Context(), r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ClearScene handles DELETE /api/scene?singletons=true
func (s *Server) ClearScene(w http.ResponseWriter, r *http.Request) {
	removeSingletons, err := queryBool(r, "singletons")
	if err != nil {
		http.Error(w, "invalid singletons parameter", http.StatusBadRequest)
		return
	}
	if err := s.svc.Clear(r.Context(), removeSingletons); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListArchives handles GET /api/archives
func (s *Server) ListArchives(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.ListArchives(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// SaveArchive handles POST /api/archives/{name}
func (s *Server) SaveArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.SaveArchive(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	rec.Payload = nil
	writeJSON(w, http.StatusCreated, rec)
}

// LoadArchive handles POST /api/archives/{name}/load
func (s *Server) LoadArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.LoadArchive(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	rec.Payload = nil
	writeJSON(w, http.StatusOK, rec)
}

// ExportBundle handles POST /api/bundles?key=
func (s *Server) ExportBundle(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.ExportBundle(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// ImportBundle handles POST /api/bundles/import?key=
func (s *Server) ImportBundle(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	views, err := s.svc.ImportBundle(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
