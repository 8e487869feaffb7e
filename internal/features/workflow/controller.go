package workflow

import (
	"strconv"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type WorkflowController struct {
	Service DefinitionService
}

func NewWorkflowController(service DefinitionService) *WorkflowController {
	return &WorkflowController{Service: service}
}

func (ctrl *WorkflowController) ListActive(c *fiber.Ctx) error {
	defs, err := ctrl.Service.ListActive(c.UserContext(), middleware.TenantID(c))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(defs)
}

func (ctrl *WorkflowController) Get(c *fiber.Ctx) error {
	var version *int
	if v := c.Query("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "version must be a positive integer",
			})
		}
		version = &n
	}

	def, err := ctrl.Service.Get(c.UserContext(), middleware.TenantID(c), c.Params("workflowId"), version)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(def)
}

func (ctrl *WorkflowController) Create(c *fiber.Ctx) error {
	var draft DefinitionDraft
	if err := c.BodyParser(&draft); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	return ctrl.create(c, draft)
}

// CreateVersion publishes a new version of the workflow named in the path.
func (ctrl *WorkflowController) CreateVersion(c *fiber.Ctx) error {
	var draft DefinitionDraft
	if err := c.BodyParser(&draft); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	draft.WorkflowID = c.Params("workflowId")
	return ctrl.create(c, draft)
}

func (ctrl *WorkflowController) create(c *fiber.Ctx, draft DefinitionDraft) error {
	def, err := ctrl.Service.Create(c.UserContext(), middleware.TenantID(c), middleware.ActorID(c), draft)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(def)
}
