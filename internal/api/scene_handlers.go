package api

import (
	"net/http"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

type nodeType int

const (
	nodeProfile nodeType = iota
	nodeFolder
	nodeEntity
)

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	var doc scene.Document
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		doc = h.ToDocument()
		return nil
	})
	if err != nil {
		s.writeFailure(w, "read scene", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// addProfileRequest is the body accepted by POST /v1/profiles.
type addProfileRequest struct {
	Name string `json:"name"`
}

// createdResponse is returned by every add route.
type createdResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleAddProfile(w http.ResponseWriter, r *http.Request) {
	var req addProfileRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	var id string
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		p, err := h.AddProfileCategory(req.Name)
		if err != nil {
			return err
		}
		id = p.ID()
		return nil
	})
	if err != nil {
		s.writeFailure(w, "add profile", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// addFolderRequest is the body accepted by POST /v1/folders.
type addFolderRequest struct {
	ParentID      string `json:"parent_id"`
	Name          string `json:"name"`
	ProfileParent bool   `json:"profile_parent"`
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var req addFolderRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ParentID == "" || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "parent_id and name are required")
		return
	}
	var id string
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		f, err := h.AddFolder(req.ParentID, req.Name, req.ProfileParent)
		if err != nil {
			return err
		}
		id = f.ID()
		return nil
	})
	if err != nil {
		s.writeFailure(w, "add folder", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// addEntityRequest is the body accepted by POST /v1/entities. When Document
// is set the entity is reconstructed from it and Name/Kind are ignored.
type addEntityRequest struct {
	ParentID      string         `json:"parent_id"`
	Name          string         `json:"name"`
	ProfileParent bool           `json:"profile_parent"`
	Kind          string         `json:"kind"`
	Document      scene.Document `json:"document"`
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var req addEntityRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ParentID == "" {
		s.writeError(w, http.StatusBadRequest, "parent_id is required")
		return
	}
	if req.Document == nil && req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name or document is required")
		return
	}
	var opts []scene.AddOption
	if req.Kind != "" {
		k, ok := scene.ParseKind(req.Kind)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown kind")
			return
		}
		opts = append(opts, scene.WithKind(k))
	}

	var id string
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		var e *scene.Entity
		var err error
		if req.Document != nil {
			e, err = h.AddEntityFromDocument(req.ParentID, req.Document, req.ProfileParent)
		} else {
			e, err = h.AddEntity(req.ParentID, req.Name, req.ProfileParent, opts...)
		}
		if err != nil {
			return err
		}
		id = e.ID()
		return nil
	})
	if err != nil {
		s.writeFailure(w, "add entity", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var doc scene.Document
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		e, ok := h.Entity(id)
		if !ok {
			return notFound("entity", id)
		}
		doc = e.ToDocument()
		return nil
	})
	if err != nil {
		s.writeFailure(w, "get entity", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// renameRequest is the body accepted by PATCH on profiles and folders.
type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRename(t nodeType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var req renameRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" {
			s.writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
			switch t {
			case nodeProfile:
				return h.RenameProfileCategory(id, req.Name)
			case nodeFolder:
				return h.RenameFolder(id, req.Name)
			default:
				return h.RenameEntity(id, req.Name)
			}
		})
		if err != nil {
			s.writeFailure(w, "rename", err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"renamed": true})
	}
}

// updateEntityRequest is the body accepted by PATCH /v1/entities/{id}.
type updateEntityRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateEntityRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name == nil && req.Active == nil {
		s.writeError(w, http.StatusBadRequest, "name or active is required")
		return
	}
	if req.Name != nil && *req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		if _, ok := h.Entity(id); !ok {
			return notFound("entity", id)
		}
		if req.Name != nil {
			if err := h.RenameEntity(id, *req.Name); err != nil {
				return err
			}
		}
		if req.Active != nil {
			return h.SetActive(id, *req.Active)
		}
		return nil
	})
	if err != nil {
		s.writeFailure(w, "update entity", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleRemove(t nodeType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
			switch t {
			case nodeProfile:
				return h.RemoveProfileCategory(id)
			case nodeFolder:
				return h.RemoveFolder(id)
			default:
				return h.RemoveEntity(id)
			}
		})
		if err != nil {
			s.writeFailure(w, "remove", err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

func (s *Server) handleAddComponent(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	var components []string
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		if err := h.AddComponent(id, name); err != nil {
			return err
		}
		e, _ := h.Entity(id)
		components = e.Components()
		return nil
	})
	if err != nil {
		s.writeFailure(w, "add component", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"components": components})
}

func (s *Server) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	var doc scene.Document
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		var err error
		doc, err = h.ComponentData(id, name)
		return err
	})
	if err != nil {
		s.writeFailure(w, "get component", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateComponent(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	var delta scene.Document
	if !s.decodeBody(w, r, &delta) {
		return
	}
	if delta == nil {
		s.writeError(w, http.StatusBadRequest, "delta must be a JSON object")
		return
	}
	var doc scene.Document
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		if err := h.UpdateComponent(id, name, delta); err != nil {
			return err
		}
		var err error
		doc, err = h.ComponentData(id, name)
		return err
	})
	if err != nil {
		s.writeFailure(w, "update component", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRemoveComponent(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	err := s.exec.Call(r.Context(), func(h *scene.Hierarchy) error {
		return h.RemoveComponent(id, name)
	})
	if err != nil {
		s.writeFailure(w, "remove component", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
