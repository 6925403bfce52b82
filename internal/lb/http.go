package lb

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"edgemesh/internal/enum"
)

// Server exposes Core.Route over HTTP for the edge router to call.
type Server struct {
	core   *Core
	logger *zap.Logger
}

// NewServer builds a Server over core.
func NewServer(core *Core, logger *zap.Logger) *Server {
	return &Server{core: core, logger: logger}
}

// Routes mounts the LB's HTTP surface on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/route/{app_hostname}", s.handleRoute)
}

type routeResponse struct {
	TargetHost  string `json:"target_host"`
	TargetPort  int    `json:"target_port"`
	ContainerID string `json:"container_id"`
	ImageID     string `json:"image_id"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "app_hostname")

	info, err := s.core.Route(r.Context(), hostname)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(routeResponse{
		TargetHost:  info.TargetHost,
		TargetPort:  info.TargetPort,
		ContainerID: info.ContainerID,
		ImageID:     info.ImageID,
		TTLSeconds:  int(info.TTL.Seconds()),
	})
}

// writeError maps the LB error taxonomy to an HTTP status the edge
// router can interpret without needing the kind string itself, though
// it's included for logging/debugging.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := enum.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case enum.ErrInvalidInput:
		status = http.StatusBadRequest
	case enum.ErrNotFound, enum.ErrNoCapacity, enum.ErrUnavailable, enum.ErrCircuitOpen, enum.ErrTimeout:
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Kind: string(kind), Message: err.Error()})
}
