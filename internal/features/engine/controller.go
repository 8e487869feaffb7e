package engine

import (
	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/cases"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

const caseTrailLimit = 50

type CaseController struct {
	Cases        cases.CaseService
	Engine       WorkflowEngine
	AuditService audit.AuditService
}

func NewCaseController(caseService cases.CaseService, engine WorkflowEngine, auditService audit.AuditService) *CaseController {
	return &CaseController{
		Cases:        caseService,
		Engine:       engine,
		AuditService: auditService,
	}
}

type ExecuteActionRequest struct {
	Action  string         `json:"action"`
	Data    map[string]any `json:"data"`
	Comment string         `json:"comment"`
}

func (ctrl *CaseController) Create(c *fiber.Ctx) error {
	var in cases.CreateCaseInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	created, err := ctrl.Cases.Create(c.UserContext(), middleware.TenantID(c), middleware.ActorID(c), in)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (ctrl *CaseController) List(c *fiber.Ctx) error {
	filter := cases.CaseFilter{
		Status:     c.Query("status"),
		AssignedTo: c.Query("assignedTo"),
		Type:       c.Query("type"),
		WorkflowID: c.Query("workflowId"),
		Limit:      int64(c.QueryInt("limit", cases.DefaultListLimit)),
		Offset:     int64(c.QueryInt("offset", 0)),
	}.Normalize()

	list, total, err := ctrl.Cases.List(c.UserContext(), middleware.TenantID(c), filter)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"data":   list,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (ctrl *CaseController) Get(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	found, err := ctrl.Cases.Get(c.UserContext(), tenantID, c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	trail, err := ctrl.AuditService.Trail(c.UserContext(), tenantID, common_models.EntityCase, found.ID, caseTrailLimit)
	if err != nil {
		trail = []common_models.AuditLog{}
	}
	return c.JSON(fiber.Map{
		"case":       found,
		"auditTrail": trail,
	})
}

func (ctrl *CaseController) AvailableActions(c *fiber.Ctx) error {
	actions, err := ctrl.Engine.AvailableActions(c.UserContext(), middleware.TenantID(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(actions)
}

func (ctrl *CaseController) ExecuteAction(c *fiber.Ctx) error {
	var body ExecuteActionRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if body.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action is required",
		})
	}

	updated, err := ctrl.Engine.ExecuteTransition(c.UserContext(), TransitionRequest{
		TenantID: middleware.TenantID(c),
		ActorID:  middleware.ActorID(c),
		CaseID:   c.Params("id"),
		Action:   body.Action,
		Data:     body.Data,
		Comment:  body.Comment,
	})
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(updated)
}
