package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/google/uuid"
)

type CreateUserInput struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type UserService interface {
	// RoleOf resolves the workflow role of a tenant user.
	RoleOf(ctx context.Context, tenantID, userID string) (string, error)
	ListUsers(ctx context.Context, tenantID string) ([]models.User, error)
	GetUser(ctx context.Context, tenantID, id string) (*models.User, error)
	CreateUser(ctx context.Context, tenantID, actorID string, in CreateUserInput) (*models.User, error)
}

type UserServiceImpl struct {
	UserRepo     UserRepository
	AuditService audit.AuditService
}

func NewUserService(userRepo UserRepository, auditService audit.AuditService) UserService {
	return &UserServiceImpl{
		UserRepo:     userRepo,
		AuditService: auditService,
	}
}

func (s *UserServiceImpl) RoleOf(ctx context.Context, tenantID, userID string) (string, error) {
	u, err := s.UserRepo.FindByID(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	if !u.IsActive {
		return "", fmt.Errorf("user %s is inactive: %w", userID, sentinel.ErrForbidden)
	}
	return u.Role, nil
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, tenantID string) ([]models.User, error) {
	return s.UserRepo.List(ctx, tenantID)
}

func (s *UserServiceImpl) GetUser(ctx context.Context, tenantID, id string) (*models.User, error) {
	return s.UserRepo.FindByID(ctx, tenantID, id)
}

func (s *UserServiceImpl) CreateUser(ctx context.Context, tenantID, actorID string, in CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("email and name are required: %w", sentinel.ErrInvalidInput)
	}
	if !IsKnownRole(in.Role) {
		return nil, fmt.Errorf("unknown role %q: %w", in.Role, sentinel.ErrInvalidInput)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        in.ID,
		TenantID:  tenantID,
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Role:      in.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.AuditService.Append(ctx, models.AuditLog{
		TenantID:   tenantID,
		ActorID:    actorID,
		EntityType: "user",
		EntityID:   user.ID,
		Action:     models.AuditActionCreate,
		NewValue:   map[string]any{"email": user.Email, "name": user.Name, "role": user.Role},
	})

	return user, nil
}
