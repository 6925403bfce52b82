package registry

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"edgemesh/internal/backend"
	"edgemesh/internal/consulapi"
)

// Server exposes the registry over a Consul-compatible HTTP dialect,
// so the load balancer core's registry client can speak to it using
// the same wire format a real Consul agent would expose.
type Server struct {
	registry *Registry
	logger   *zap.Logger
}

// NewServer builds a Server over registry.
func NewServer(registry *Registry, logger *zap.Logger) *Server {
	return &Server{registry: registry, logger: logger}
}

// Routes mounts the registry's HTTP surface on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/v1/health/service/{name}", s.handleWatch)
	r.Put("/v1/agent/service/register", s.handleRegister)
	r.Put("/v1/agent/service/deregister/{id}", s.handleDeregister)
	r.Get("/v1/catalog/services", s.handleCatalog)
}

// catalogEntry summarizes one app hostname's known backends for the
// admin/operations surface.
type catalogEntry struct {
	AppHostname  string `json:"app_hostname"`
	BackendCount int    `json:"backend_count"`
	PassingCount int    `json:"passing_count"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	backends := s.registry.Snapshot()

	byHostname := make(map[string]*catalogEntry)
	order := make([]string, 0)
	for _, b := range backends {
		entry, ok := byHostname[b.Labels.AppHostname]
		if !ok {
			entry = &catalogEntry{AppHostname: b.Labels.AppHostname}
			byHostname[b.Labels.AppHostname] = entry
			order = append(order, b.Labels.AppHostname)
		}
		entry.BackendCount++
		if b.Healthy() {
			entry.PassingCount++
		}
	}

	entries := make([]catalogEntry, 0, len(order))
	for _, hostname := range order {
		entries = append(entries, *byHostname[hostname])
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.logger.Warn("registry: encode catalog response failed", zap.Error(err))
	}
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	lastVersion := uint64(0)
	if idx := r.URL.Query().Get("index"); idx != "" {
		if v, err := strconv.ParseUint(idx, 10, 64); err == nil {
			lastVersion = v
		}
	}

	maxWait := DefaultMaxWait
	nonBlocking := false
	if w := r.URL.Query().Get("wait"); w != "" {
		if d, err := time.ParseDuration(w); err == nil {
			if d <= 0 {
				nonBlocking = true
			} else {
				maxWait = d
			}
		}
	}

	var version uint64
	var backends []backend.Backend
	if nonBlocking {
		version, backends = s.registry.QueryHealthy(name)
	} else {
		version, backends = s.registry.Watch(r.Context(), name, lastVersion, maxWait)
	}

	entries := make([]consulapi.HealthEntry, 0, len(backends))
	for _, b := range backends {
		entries = append(entries, toHealthEntry(b))
	}

	w.Header().Set(consulapi.IndexHeader, strconv.FormatUint(version, 10))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.logger.Warn("registry: encode watch response failed", zap.Error(err))
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req consulapi.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed register request", http.StatusBadRequest)
		return
	}

	imageID, appHostname, _ := consulapi.ParseTags(req.Tags)
	b := backend.Backend{
		ContainerID: req.ID,
		Address: backend.Address{
			Host:         req.Address,
			ExternalPort: req.Port,
		},
		Labels: backend.Labels{
			ImageID:     imageID,
			AppHostname: appHostname,
		},
	}
	s.registry.Register(b)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.registry.Deregister(id)
	w.WriteHeader(http.StatusOK)
}

func toHealthEntry(b backend.Backend) consulapi.HealthEntry {
	status := string(b.Health)
	return consulapi.HealthEntry{
		Service: consulapi.Service{
			ID:      b.ContainerID,
			Service: b.Labels.AppHostname,
			Address: b.Address.Host,
			Port:    b.Address.ExternalPort,
			Tags:    consulapi.BuildTags(b.Labels.ImageID, b.Labels.AppHostname, b.Address.ExternalPort),
		},
		Checks: []consulapi.Check{{Status: status}},
	}
}
