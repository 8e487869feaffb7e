package system

import (
	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type WebSocketApi struct {
	Hub    *EventHub
	config *config.Config
}

func NewWebSocketApi(hub *EventHub, cfg *config.Config) *WebSocketApi {
	return &WebSocketApi{
		Hub:    hub,
		config: cfg,
	}
}

func (h *WebSocketApi) Setup(app *fiber.App) {
	app.Get("/api/tenants/:tenant/events",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantScope(),
		func(c *fiber.Ctx) error {
			if !websocket.IsWebSocketUpgrade(c) {
				return fiber.ErrUpgradeRequired
			}
			return c.Next()
		},
		websocket.New(h.Hub.HandleWebSocket),
	)
}
