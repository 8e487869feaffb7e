package engine

import (
	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type CaseApi struct {
	controller *CaseController
	config     *config.Config
}

func NewCaseApi(controller *CaseController, config *config.Config) *CaseApi {
	return &CaseApi{
		controller: controller,
		config:     config,
	}
}

func (h *CaseApi) Setup(app *fiber.App) {
	group := app.Group("/api/tenants/:tenant/cases", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/", middleware.TenantScope(), h.controller.Create)
	group.Get("/", middleware.TenantScope(), h.controller.List)
	group.Get("/:id", middleware.TenantScope(), h.controller.Get)
	group.Get("/:id/actions", middleware.TenantScope(), h.controller.AvailableActions)
	group.Post("/:id/actions", middleware.TenantScope(), h.controller.ExecuteAction)
}
