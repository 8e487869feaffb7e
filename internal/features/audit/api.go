package audit

import (
	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
}

func NewAuditApi(controller *AuditController, config *config.Config) *AuditApi {
	return &AuditApi{
		controller: controller,
		config:     config,
	}
}

func (h *AuditApi) Setup(app *fiber.App) {
	audit := app.Group("/api/tenants/:tenant/audit", middleware.AuthMiddleware(h.config.SkipAuth))

	audit.Get("/:entityType/:entityId", middleware.TenantScope(), h.controller.Trail)
	audit.Get("/:entityType/:entityId/export", middleware.TenantScope(), h.controller.Export)
}
