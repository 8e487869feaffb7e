package user

import (
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type UserController struct {
	UserService UserService
}

func NewUserController(userService UserService) *UserController {
	return &UserController{
		UserService: userService,
	}
}

func (ctrl *UserController) ListUsers(c *fiber.Ctx) error {
	users, err := ctrl.UserService.ListUsers(c.UserContext(), middleware.TenantID(c))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(users)
}

func (ctrl *UserController) GetUser(c *fiber.Ctx) error {
	u, err := ctrl.UserService.GetUser(c.UserContext(), middleware.TenantID(c), c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(u)
}

func (ctrl *UserController) CreateUser(c *fiber.Ctx) error {
	var req CreateUserInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	u, err := ctrl.UserService.CreateUser(c.UserContext(), middleware.TenantID(c), middleware.ActorID(c), req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}
