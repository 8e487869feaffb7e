package audit

import (
	"fmt"
	"strconv"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

// Trail returns the newest-first audit entries of one entity.
func (ctrl *AuditController) Trail(c *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(c.Query("limit", strconv.Itoa(DefaultTrailLimit)), 10, 64)

	logs, err := ctrl.Service.Trail(c.UserContext(), middleware.TenantID(c), c.Params("entityType"), c.Params("entityId"), limit)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	return c.JSON(logs)
}

func (ctrl *AuditController) Export(c *fiber.Ctx) error {
	data, filename, err := ctrl.Service.ExportTrail(c.UserContext(), middleware.TenantID(c), c.Params("entityType"), c.Params("entityId"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(data)
}
