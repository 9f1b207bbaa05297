package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Abhio2i/TDF-sub001/internal/engine"
	"github.com/Abhio2i/TDF-sub001/internal/replication"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
	"github.com/Abhio2i/TDF-sub001/internal/store"
)

// maxBodyBytes caps request bodies; entity documents can be large.
const maxBodyBytes = 4 << 20

// Executor runs fn on the goroutine that owns the hierarchy.
type Executor interface {
	Call(ctx context.Context, fn func(h *scene.Hierarchy) error) error
}

// PeerFunc reports replication peers. It is invoked through the Executor.
type PeerFunc func() []replication.PeerStatus

// Server is an HTTP API server that exposes scene editing and scenario storage.
type Server struct {
	exec      Executor
	store     store.Store // nil disables scenario routes
	peers     PeerFunc    // nil reports no peers
	logger    *slog.Logger
	authToken string // empty = no auth required
	replica   bool   // scenario loads belong to the master
}

// NewServer creates a new Server with the given dependencies.
func NewServer(exec Executor, st store.Store, peers PeerFunc, logger *slog.Logger, authToken string) *Server {
	return &Server{
		exec:      exec,
		store:     st,
		peers:     peers,
		logger:    logger,
		authToken: authToken,
	}
}

// SetReplica marks the server as fronting a slave. A slave mirrors its
// master, so loading a scenario locally is refused.
func (s *Server) SetReplica(replica bool) { s.replica = replica }

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and counters: no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /debug/vars", expvar.Handler())

	mux.HandleFunc("GET /v1/scene", s.auth(s.handleScene))
	mux.HandleFunc("GET /v1/peers", s.auth(s.handlePeers))

	mux.HandleFunc("POST /v1/profiles", s.auth(s.handleAddProfile))
	mux.HandleFunc("PATCH /v1/profiles/{id}", s.auth(s.handleRename(nodeProfile)))
	mux.HandleFunc("DELETE /v1/profiles/{id}", s.auth(s.handleRemove(nodeProfile)))

	mux.HandleFunc("POST /v1/folders", s.auth(s.handleAddFolder))
	mux.HandleFunc("PATCH /v1/folders/{id}", s.auth(s.handleRename(nodeFolder)))
	mux.HandleFunc("DELETE /v1/folders/{id}", s.auth(s.handleRemove(nodeFolder)))

	mux.HandleFunc("POST /v1/entities", s.auth(s.handleAddEntity))
	mux.HandleFunc("GET /v1/entities/{id}", s.auth(s.handleGetEntity))
	mux.HandleFunc("PATCH /v1/entities/{id}", s.auth(s.handleUpdateEntity))
	mux.HandleFunc("DELETE /v1/entities/{id}", s.auth(s.handleRemove(nodeEntity)))

	mux.HandleFunc("POST /v1/entities/{id}/components/{name}", s.auth(s.handleAddComponent))
	mux.HandleFunc("GET /v1/entities/{id}/components/{name}", s.auth(s.handleGetComponent))
	mux.HandleFunc("PATCH /v1/entities/{id}/components/{name}", s.auth(s.handleUpdateComponent))
	mux.HandleFunc("DELETE /v1/entities/{id}/components/{name}", s.auth(s.handleRemoveComponent))

	mux.HandleFunc("GET /v1/scenarios", s.auth(s.handleListScenarios))
	mux.HandleFunc("PUT /v1/scenarios/{name}", s.auth(s.handleSaveScenario))
	mux.HandleFunc("POST /v1/scenarios/{name}/load", s.auth(s.handleLoadScenario))
	mux.HandleFunc("DELETE /v1/scenarios/{name}", s.auth(s.handleDeleteScenario))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := []replication.PeerStatus{}
	if s.peers != nil {
		err := s.exec.Call(r.Context(), func(*scene.Hierarchy) error {
			peers = s.peers()
			return nil
		})
		if err != nil {
			s.writeFailure(w, "list peers", err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"peers": peers})
}

// --- helpers ---

// decodeBody decodes a JSON request body into v with a size cap.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps a domain error to a status code. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api: "+op+" failed", "error", err)
		s.writeError(w, status, op+" failed")
		return
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scene.ErrNotFound),
		errors.Is(err, scene.ErrComponentNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scene.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, scene.ErrUnsupportedComponent),
		errors.Is(err, scene.ErrPrerequisiteMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scene.ErrInvalidDocument),
		errors.Is(err, scene.ErrEmptyName),
		errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrQueueFull),
		errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
