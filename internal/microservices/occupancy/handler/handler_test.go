package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/domain"
	"table-occupancy/internal/occupancy"
)

type fakeService struct {
	resp    domain.OccupancyResponse
	err     error
	updates chan domain.OccupancyResponse

	tenants   []domain.TenantID
	refreshes int
}

func (f *fakeService) GetOccupancy(_ context.Context, tenant domain.TenantID) (domain.OccupancyResponse, error) {
	f.tenants = append(f.tenants, tenant)
	if !tenant.Valid() {
		return domain.OccupancyResponse{}, occupancy.ErrMissingTenant
	}
	resp := f.resp
	resp.TenantID = tenant
	return resp, f.err
}

func (f *fakeService) Refresh(_ context.Context, tenant domain.TenantID) (domain.OccupancyResponse, error) {
	f.refreshes++
	resp := f.resp
	resp.TenantID = tenant
	resp.Generation++
	return resp, f.err
}

func (f *fakeService) LastUpdated(_ context.Context, tenant domain.TenantID) (domain.LastUpdatedResponse, error) {
	return domain.LastUpdatedResponse{TenantID: tenant, LastUpdatedAt: f.resp.ComputedAt}, f.err
}

func (f *fakeService) Watch(context.Context, domain.TenantID) (<-chan domain.OccupancyResponse, error) {
	return f.updates, f.err
}

func newTestRouter(t *testing.T, svc *fakeService, checks map[string]HealthCheck) http.Handler {
	lg := logger.FromZap(zaptest.NewLogger(t), "handler-test")
	return Router(New(svc, checks, lg))
}

func sampleResponse() domain.OccupancyResponse {
	return domain.OccupancyResponse{
		Generation: 5,
		ComputedAt: time.Date(2026, 10, 16, 21, 0, 0, 0, time.UTC),
		Tables: []domain.TableProjection{
			{TableID: "t1", Status: domain.TableOccupied, ActiveOrderID: "o1", ActiveOrderTotal: decimal.NewFromInt(250), ActiveOrderItemCount: 3},
			{TableID: "t2", Status: domain.TableAvailable, ActiveOrderTotal: decimal.Zero},
		},
	}
}

func TestGetOccupancy(t *testing.T) {
	svc := &fakeService{resp: sampleResponse()}
	rec := httptest.NewRecorder()
	newTestRouter(t, svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-a/tables/occupancy", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, []domain.TenantID{"tenant-a"}, svc.tenants)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tenant-a", body["tenant_id"])
	assert.EqualValues(t, 5, body["generation"])
	tables := body["tables"].([]any)
	require.Len(t, tables, 2)
	first := tables[0].(map[string]any)
	assert.Equal(t, "occupied", first["status"])
	assert.Equal(t, "250", first["active_order_total"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		typ  string
	}{
		{"missing tenant", occupancy.ErrMissingTenant, http.StatusBadRequest, "missing_tenant"},
		{"no snapshot yet", fmt.Errorf("%w: context deadline exceeded", occupancy.ErrSnapshotUnavailable), http.StatusServiceUnavailable, "snapshot_unavailable"},
		{"closing", occupancy.ErrEngineClosed, http.StatusServiceUnavailable, "shutting_down"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{err: tc.err}
			rec := httptest.NewRecorder()
			newTestRouter(t, svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-a/tables/occupancy", nil))

			assert.Equal(t, tc.code, rec.Code)
			var problem map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tc.typ, problem["type"])
			assert.EqualValues(t, tc.code, problem["status"])
		})
	}
}

func TestBlankTenantIsBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, &fakeService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/%20/tables/occupancy", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	svc := &fakeService{resp: sampleResponse()}
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tenants/tenant-a/tables/occupancy/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.refreshes)

	var resp domain.OccupancyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 6, resp.Generation)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-a/tables/occupancy/refresh", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLastUpdated(t *testing.T) {
	svc := &fakeService{resp: sampleResponse()}
	rec := httptest.NewRecorder()
	newTestRouter(t, svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-a/tables/occupancy/last-updated", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.LastUpdatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.TenantID("tenant-a"), resp.TenantID)
	assert.True(t, resp.LastUpdatedAt.Equal(svc.resp.ComputedAt))
}

func TestStream(t *testing.T) {
	updates := make(chan domain.OccupancyResponse, 2)
	svc := &fakeService{updates: updates}
	srv := httptest.NewServer(newTestRouter(t, svc, nil))
	defer srv.Close()

	first := sampleResponse()
	first.TenantID = "tenant-a"
	updates <- first

	resp, err := http.Get(srv.URL + "/api/v1/tenants/tenant-a/tables/occupancy/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() map[string]string {
		fields := map[string]string{}
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return fields
			}
			k, v, _ := strings.Cut(line, ": ")
			fields[k] = v
		}
	}

	ev := readEvent()
	assert.Equal(t, "occupancy", ev["event"])
	assert.Equal(t, "5", ev["id"])
	var payload domain.OccupancyResponse
	require.NoError(t, json.Unmarshal([]byte(ev["data"]), &payload))
	assert.Equal(t, domain.TenantID("tenant-a"), payload.TenantID)

	second := first
	second.Generation = 6
	updates <- second
	assert.Equal(t, "6", readEvent()["id"])

	close(updates)
	_, err = reader.ReadString('\n')
	assert.Error(t, err, "stream ends when the watch closes")
}

func TestStream_WatchError(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, &fakeService{err: occupancy.ErrMissingTenant}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/x/tables/occupancy/stream", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	}
	rec := httptest.NewRecorder()
	newTestRouter(t, &fakeService{}, checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	checks["rabbitmq"] = func(context.Context) error { return errors.New("rabbitmq connection is closed") }
	rec = httptest.NewRecorder()
	newTestRouter(t, &fakeService{}, checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "rabbitmq connection is closed")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, &fakeService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
