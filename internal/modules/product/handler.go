package product

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/georgemunganga/stockwatch/internal/modules/tenant"
	"github.com/georgemunganga/stockwatch/internal/obs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

// Handler exposes product HTTP endpoints.
type Handler struct {
	service Service
	tenants tenant.Resolver
	schemas map[string][]byte
}

func NewHandler(service Service, tenants tenant.Resolver) *Handler {
	return &Handler{service: service, tenants: tenants, schemas: buildSchemas()}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.tenants.Middleware)
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{id}", h.getProduct)
			r.Patch("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
			r.Post("/{id}/adjust", h.adjustStock)
		})
	})
	r.Get("/schema/{name}", h.getSchema)
}

// Unsupported answers any method or path shape the API does not route.
func Unsupported(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusBadRequest, "unsupported_operation", "Unsupported operation", "")
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.service.GetProduct(r.Context(), tenant.FromContext(r.Context()), id)
	if errors.Is(err, ErrNotFound) {
		respond(w, http.StatusOK, struct{}{})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), tenant.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, products)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req NewProduct
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), "")
		return
	}
	p, err := h.service.CreateProduct(r.Context(), tenant.FromContext(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error(), "")
		return
	}
	patch, err := DecodePatch(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	p, err := h.service.UpdateProduct(r.Context(), tenant.FromContext(r.Context()), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), "")
		return
	}
	id := chi.URLParam(r, "id")
	p, err := h.service.AdjustStock(r.Context(), tenant.FromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteProduct(r.Context(), tenant.FromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.schemas[chi.URLParam(r, "name")]
	if !ok {
		Unsupported(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(doc)
}

// fail maps store errors onto status codes. Unexpected errors are 500 with
// the error text as details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error(), "")
	case errors.Is(err, ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error(), "")
	case errors.Is(err, ErrBadRequest):
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error(), "")
	case errors.Is(err, ErrTransient):
		obs.Logger.Warn("store_unavailable", "error", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "store unavailable", err.Error())
	default:
		obs.Logger.Error("internal_error", "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", err.Error())
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	respond(w, status, errorResponse{
		Error:     code,
		Message:   message,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
