package workflow

import (
	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type WorkflowApi struct {
	controller *WorkflowController
	config     *config.Config
}

func NewWorkflowApi(controller *WorkflowController, config *config.Config) *WorkflowApi {
	return &WorkflowApi{
		controller: controller,
		config:     config,
	}
}

func (h *WorkflowApi) Setup(app *fiber.App) {
	workflows := app.Group("/api/tenants/:tenant/workflows", middleware.AuthMiddleware(h.config.SkipAuth))

	workflows.Get("/", middleware.TenantScope(), h.controller.ListActive)
	workflows.Get("/:workflowId", middleware.TenantScope(), h.controller.Get)
	workflows.Post("/", middleware.TenantScope(), middleware.RequireRole("Admin"), h.controller.Create)
	workflows.Put("/:workflowId", middleware.TenantScope(), middleware.RequireRole("Admin"), h.controller.CreateVersion)
}
