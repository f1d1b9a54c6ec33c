package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/service"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/validator"
)

// UserAdmin manages staff accounts.
type UserAdmin interface {
	CreateUser(ctx context.Context, req service.CreateUserRequest) (*service.UserDTO, error)
	List(ctx context.Context, limit, offset int, search string) (*service.UserListResponse, error)
	SetStatus(ctx context.Context, actorID, userID uuid.UUID, status domain.UserStatus) (*service.UserDTO, error)
}

type UserHandler struct {
	users     UserAdmin
	validator *validator.Validator
	log       *slog.Logger
}

func NewUserHandler(users UserAdmin, validator *validator.Validator) *UserHandler {
	return &UserHandler{
		users:     users,
		validator: validator,
		log:       logger.With("user_handler"),
	}
}

// ListUsers lists staff accounts
// GET /api/v1/admin/users?limit=&offset=&search=
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	resp, err := h.users.List(c.UserContext(), c.QueryInt("limit", 20), c.QueryInt("offset", 0), c.Query("search"))
	if err != nil {
		return writeAuthError(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// CreateUser adds a staff account
// POST /api/v1/admin/users
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req service.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := h.users.CreateUser(c.UserContext(), req)
	if err != nil {
		return writeAuthError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// UpdateStatus enables or disables a staff account
// PATCH /api/v1/admin/users/:id/status
func (h *UserHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	var req struct {
		Status domain.UserStatus `json:"status" validate:"required,oneof=active inactive"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	actor, ok := c.Locals("user").(*domain.User)
	if !ok {
		return writeAuthError(c, h.log, service.ErrUnauthorized)
	}

	user, err := h.users.SetStatus(c.UserContext(), actor.ID, userID, req.Status)
	if err != nil {
		return writeAuthError(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"user": user})
}
