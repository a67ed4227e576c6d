// handler.go — основной обработчик API User Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"log/slog"

	"github.com/mgnetworking/nutritrack/user-module/internal/api/middleware"
	"github.com/mgnetworking/nutritrack/user-module/internal/service"
)

// APIHandler — основной обработчик API User Module.
type APIHandler struct {
	health       *HealthHandler
	provisioning *service.ProvisioningService
	roles        *service.RoleService
	access       *middleware.AccessChecker
	// appClient — clientId приложения по умолчанию для client-ролей.
	appClient string
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	provisioning *service.ProvisioningService,
	roles *service.RoleService,
	access *middleware.AccessChecker,
	appClient string,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:       health,
		provisioning: provisioning,
		roles:        roles,
		access:       access,
		appClient:    appClient,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}
