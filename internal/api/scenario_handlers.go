package api

import (
	"fmt"
	"net/http"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
	"github.com/Abhio2i/TDF-sub001/internal/store"
)

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", scene.ErrNotFound, kind, id)
}

// requireStore writes 501 when no scenario store is configured.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusNotImplemented, "scenario storage is not configured")
		return false
	}
	return true
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	infos, err := s.store.List(r.Context())
	if err != nil {
		s.writeFailure(w, "list scenarios", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scenarios": infos})
}

// handleSaveScenario stores the current tree under the path name.
func (s *Server) handleSaveScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	name := r.PathValue("name")
	if err := store.ValidateName(name); err != nil {
		s.writeFailure(w, "save scenario", err)
		return
	}
	var doc scene.Document
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		doc = h.ToDocument()
		return nil
	})
	if err == nil {
		err = s.store.Save(r.Context(), name, doc)
	}
	if err != nil {
		s.writeFailure(w, "save scenario", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// handleLoadScenario replaces the whole tree. Connected peers receive a
// fresh snapshot through the hierarchy's reset event.
func (s *Server) handleLoadScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if s.replica {
		s.writeError(w, http.StatusConflict, "scenarios can only be loaded on the master; this node mirrors its upstream")
		return
	}
	name := r.PathValue("name")
	doc, err := s.store.Load(r.Context(), name)
	if err == nil {
		err = s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
			return h.FromDocument(doc)
		})
	}
	if err != nil {
		s.writeFailure(w, "load scenario", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"loaded": true})
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.Delete(r.Context(), r.PathValue("name")); err != nil {
		s.writeFailure(w, "delete scenario", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
