package handler

import (
	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/microservices/occupancy/service"
)

type Handler struct {
	OccupancyHandler *OccupancyHandler
	HealthHandler    *HealthHandler
}

func New(svc service.OccupancyServiceInterface, checks map[string]HealthCheck, lg *logger.Logger) *Handler {
	return &Handler{
		OccupancyHandler: NewOccupancyHandler(svc, lg),
		HealthHandler:    NewHealthHandler(checks),
	}
}
