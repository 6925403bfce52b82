package billing

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server exposes ledger summaries over HTTP for the out-of-scope
// admin/billing surface to consume.
type Server struct {
	ledger *Ledger
}

// NewServer builds a Server over ledger.
func NewServer(ledger *Ledger) *Server {
	return &Server{ledger: ledger}
}

// Routes mounts the billing HTTP surface on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/billing/{user_id}/images/{image_id}", s.handleSummaryByImage)
	r.Get("/billing/{user_id}/images", s.handleSummaryAllImages)
}

func (s *Server) handleSummaryByImage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	imageID := chi.URLParam(r, "image_id")
	summary := s.ledger.SummaryByImage(userID, imageID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (s *Server) handleSummaryAllImages(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	summaries := s.ledger.SummaryAllImages(userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}
