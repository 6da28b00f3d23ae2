package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tenants/{tenant_id}/tables/occupancy", h.OccupancyHandler.GetOccupancy)
	mux.HandleFunc("POST /api/v1/tenants/{tenant_id}/tables/occupancy/refresh", h.OccupancyHandler.Refresh)
	mux.HandleFunc("GET /api/v1/tenants/{tenant_id}/tables/occupancy/last-updated", h.OccupancyHandler.LastUpdated)
	mux.HandleFunc("GET /api/v1/tenants/{tenant_id}/tables/occupancy/stream", h.OccupancyHandler.Stream)
	mux.HandleFunc("GET /healthz", h.HealthHandler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
