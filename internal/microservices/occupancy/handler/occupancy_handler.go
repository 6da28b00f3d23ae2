package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/domain"
	"table-occupancy/internal/microservices/occupancy/service"
	"table-occupancy/internal/occupancy"
)

const streamHeartbeat = 15 * time.Second

type OccupancyHandler struct {
	service service.OccupancyServiceInterface
	lg      *logger.Logger
}

func NewOccupancyHandler(svc service.OccupancyServiceInterface, lg *logger.Logger) *OccupancyHandler {
	return &OccupancyHandler{service: svc, lg: lg}
}

func (h *OccupancyHandler) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetOccupancy(r.Context(), tenantParam(r))
	if err != nil {
		h.fail(w, r, "get_occupancy_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OccupancyHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Refresh(r.Context(), tenantParam(r))
	if err != nil {
		h.fail(w, r, "refresh_failed", err)
		return
	}
	h.lg.Info("occupancy_refreshed", map[string]any{
		"tenant": string(resp.TenantID), "generation": resp.Generation, "degraded": resp.Degraded,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (h *OccupancyHandler) LastUpdated(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.LastUpdated(r.Context(), tenantParam(r))
	if err != nil {
		h.fail(w, r, "last_updated_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stream sends one server-sent event per snapshot generation.
func (h *OccupancyHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
		return
	}
	tenant := tenantParam(r)
	updates, err := h.service.Watch(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, "stream_failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.lg.Info("stream_opened", map[string]any{"tenant": string(tenant)})
	defer h.lg.Info("stream_closed", map[string]any{"tenant": string(tenant)})

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case resp, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, resp); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, resp domain.OccupancyResponse) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: occupancy\nid: %d\ndata: %s\n\n", resp.Generation, body)
	return err
}

func (h *OccupancyHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	code, typ := classify(err)
	if code >= http.StatusInternalServerError {
		h.lg.Error(action, err, map[string]any{"tenant": r.PathValue("tenant_id"), "path": r.URL.Path})
	}
	writeProblem(w, code, typ, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, occupancy.ErrMissingTenant):
		return http.StatusBadRequest, "missing_tenant"
	case errors.Is(err, occupancy.ErrSnapshotUnavailable):
		return http.StatusServiceUnavailable, "snapshot_unavailable"
	case errors.Is(err, occupancy.ErrEngineClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func tenantParam(r *http.Request) domain.TenantID {
	return domain.TenantID(r.PathValue("tenant_id"))
}
