package service

import (
	"context"
	"time"

	"table-occupancy/internal/domain"
	"table-occupancy/internal/occupancy"
)

// Engine is the part of *occupancy.Engine the service exposes.
type Engine interface {
	GetProjections(ctx context.Context, tenant domain.TenantID) (occupancy.View, error)
	ForceRefresh(ctx context.Context, tenant domain.TenantID) (occupancy.View, error)
	LastUpdatedAt(ctx context.Context, tenant domain.TenantID) (time.Time, error)
	Watch(ctx context.Context, tenant domain.TenantID) (<-chan occupancy.View, error)
}

type OccupancyServiceInterface interface {
	GetOccupancy(ctx context.Context, tenant domain.TenantID) (domain.OccupancyResponse, error)
	Refresh(ctx context.Context, tenant domain.TenantID) (domain.OccupancyResponse, error)
	LastUpdated(ctx context.Context, tenant domain.TenantID) (domain.LastUpdatedResponse, error)
	Watch(ctx context.Context, tenant domain.TenantID) (<-chan domain.OccupancyResponse, error)
}

type OccupancyService struct {
	engine Engine
}

func NewOccupancyService(engine Engine) *OccupancyService {
	return &OccupancyService{engine: engine}
}

func (s *OccupancyService) GetOccupancy(ctx context.Context, tenant domain.TenantID) (domain.OccupancyResponse, error) {
	v, err := s.engine.GetProjections(ctx, tenant)
	if err != nil {
		return domain.OccupancyResponse{}, err
	}
	return toResponse(v), nil
}

func (s *OccupancyService) Refresh(ctx context.Context, tenant domain.TenantID) (domain.OccupancyResponse, error) {
	v, err := s.engine.ForceRefresh(ctx, tenant)
	if err != nil {
		return domain.OccupancyResponse{}, err
	}
	return toResponse(v), nil
}

func (s *OccupancyService) LastUpdated(ctx context.Context, tenant domain.TenantID) (domain.LastUpdatedResponse, error) {
	at, err := s.engine.LastUpdatedAt(ctx, tenant)
	if err != nil {
		return domain.LastUpdatedResponse{}, err
	}
	return domain.LastUpdatedResponse{TenantID: tenant, LastUpdatedAt: at}, nil
}

func (s *OccupancyService) Watch(ctx context.Context, tenant domain.TenantID) (<-chan domain.OccupancyResponse, error) {
	views, err := s.engine.Watch(ctx, tenant)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.OccupancyResponse)
	go func() {
		defer close(out)
		for v := range views {
			select {
			case out <- toResponse(v):
			case <-ctx.Done():
				// drain so the engine side can observe ctx and exit
				for range views {
				}
				return
			}
		}
	}()
	return out, nil
}

func toResponse(v occupancy.View) domain.OccupancyResponse {
	tables := v.Projections
	if tables == nil {
		tables = []domain.TableProjection{}
	}
	return domain.OccupancyResponse{
		TenantID:     v.Tenant,
		Generation:   v.Generation,
		ComputedAt:   v.ComputedAt,
		AgeMillis:    v.Age.Milliseconds(),
		Degraded:     v.Degraded,
		Tables:       tables,
		LegacyStatus: v.LegacyStatus,
	}
}
