package notification

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/georgemunganga/stockwatch/internal/modules/tenant"
	"github.com/go-chi/chi/v5"
)

// Handler serves the recent alerts of the calling tenant.
type Handler struct {
	recorder *Recorder
	tenants  tenant.Resolver
}

func NewHandler(recorder *Recorder, tenants tenant.Resolver) *Handler {
	return &Handler{recorder: recorder, tenants: tenants}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.tenants.Middleware).Get("/alerts", h.listAlerts)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	respond(w, http.StatusOK, h.recorder.Recent(tenant.FromContext(r.Context()), limit))
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
