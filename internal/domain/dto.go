package domain

import "time"

// OccupancyResponse is the HTTP shape of one tenant view.
type OccupancyResponse struct {
	TenantID     TenantID          `json:"tenant_id"`
	Generation   uint64            `json:"generation"`
	ComputedAt   time.Time         `json:"computed_at"`
	AgeMillis    int64             `json:"age_ms"`
	Degraded     bool              `json:"degraded"`
	Tables       []TableProjection `json:"tables"`
	LegacyStatus map[string]string `json:"legacy_status,omitempty"`
}

type LastUpdatedResponse struct {
	TenantID      TenantID  `json:"tenant_id"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}
