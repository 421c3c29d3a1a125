// Package server assembles the HTTP surface of the service.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/georgemunganga/stockwatch/internal/modules/alert"
	"github.com/georgemunganga/stockwatch/internal/modules/notification"
	"github.com/georgemunganga/stockwatch/internal/modules/product"
	"github.com/georgemunganga/stockwatch/internal/modules/tenant"
	"github.com/georgemunganga/stockwatch/internal/obs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the components the router exposes.
type Deps struct {
	Products product.Service
	Tenants  tenant.Resolver
	Recorder *notification.Recorder
	Pipeline *alert.Pipeline
	// Ping reports store health; nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewRouter builds the HTTP handler. Unrouted paths and methods answer 400.
func NewRouter(d Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(obs.AccessLog)
	router.NotFound(product.Unsupported)
	router.MethodNotAllowed(product.Unsupported)

	router.Get("/healthz", healthz(d.Ping))
	if d.Pipeline != nil {
		router.Get("/debug/pipeline", d.Pipeline.StatsHandler)
	}

	product.NewHandler(d.Products, d.Tenants).RegisterRoutes(router)
	if d.Recorder != nil {
		notification.NewHandler(d.Recorder, d.Tenants).RegisterRoutes(router)
	}
	return router
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
