package system

import (
	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SystemApi struct {
	controller *HealthController
	gatherer   prometheus.Gatherer
	config     *config.Config
}

func NewSystemApi(controller *HealthController, gatherer prometheus.Gatherer, cfg *config.Config) *SystemApi {
	return &SystemApi{
		controller: controller,
		gatherer:   gatherer,
		config:     cfg,
	}
}

func (h *SystemApi) Setup(app *fiber.App) {
	app.Get("/health", h.controller.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	app.Get("/api/me", middleware.AuthMiddleware(h.config.SkipAuth), h.controller.Me)
}
