package system

import (
	"context"
	"sync"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency the health endpoint checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	mu     sync.RWMutex
	checks map[string]Pinger
}

func NewHealthController(mongodb *database.MongodbDB) *HealthController {
	return &HealthController{checks: map[string]Pinger{"mongodb": mongodb}}
}

// AddCheck registers another dependency, e.g. PostgreSQL when it stores cases.
func (h *HealthController) AddCheck(name string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = p
}

func (h *HealthController) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	h.mu.RLock()
	defer h.mu.RUnlock()

	status := fiber.StatusOK
	components := fiber.Map{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status = fiber.StatusServiceUnavailable
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":     overall,
		"components": components,
	})
}

// Me echoes the caller's token claims.
func (h *HealthController) Me(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	return c.JSON(fiber.Map{
		"user_id":   claims.UserID,
		"tenant_id": claims.TenantID,
		"role":      claims.Role,
	})
}
