package user

import (
	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type UserApi struct {
	controller *UserController
	config     *config.Config
}

func NewUserApi(controller *UserController, config *config.Config) *UserApi {
	return &UserApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all user-related routes
func (h *UserApi) Setup(app *fiber.App) {
	users := app.Group("/api/tenants/:tenant/users", middleware.AuthMiddleware(h.config.SkipAuth))

	users.Get("/", middleware.TenantScope(), h.controller.ListUsers)
	users.Get("/:id", middleware.TenantScope(), h.controller.GetUser)
	users.Post("/", middleware.TenantScope(), middleware.RequireRole(RoleAdmin), h.controller.CreateUser)
}
