package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	DefaultTrailLimit = 100
	MaxTrailLimit     = 500
)

type UserFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]common_models.User, error)
}

type AuditService interface {
	// Append records entry. Failures are logged and never returned.
	Append(ctx context.Context, entry common_models.AuditLog)
	Trail(ctx context.Context, tenantID, entityType, entityID string, limit int64) ([]common_models.AuditLog, error)
	ExportTrail(ctx context.Context, tenantID, entityType, entityID string) ([]byte, string, error)
}

type AuditServiceImpl struct {
	Repo     AuditRepository
	UserRepo UserFinder
	Logger   *zap.Logger
}

func NewAuditService(repo AuditRepository, userRepo UserFinder, logger *zap.Logger) AuditService {
	return &AuditServiceImpl{
		Repo:     repo,
		UserRepo: userRepo,
		Logger:   logger,
	}
}

func (s *AuditServiceImpl) Append(ctx context.Context, entry common_models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ActorID == "" {
		entry.ActorID = common_models.SystemActor
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := s.Repo.Create(ctx, entry); err != nil {
		s.Logger.Error("failed to write audit entry",
			zap.String("tenant_id", entry.TenantID),
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID),
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
	}
}

func (s *AuditServiceImpl) Trail(ctx context.Context, tenantID, entityType, entityID string, limit int64) ([]common_models.AuditLog, error) {
	if limit < 1 {
		limit = DefaultTrailLimit
	}
	if limit > MaxTrailLimit {
		limit = MaxTrailLimit
	}

	logs, err := s.Repo.ListByEntity(ctx, tenantID, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}

	// Collect Actor IDs
	actorIDs := make([]string, 0)
	uniqueIDs := make(map[string]bool)
	for _, log := range logs {
		if log.ActorID != common_models.SystemActor && log.ActorID != "" {
			if !uniqueIDs[log.ActorID] {
				uniqueIDs[log.ActorID] = true
				actorIDs = append(actorIDs, log.ActorID)
			}
		}
	}

	// Batch Fetch Users
	userMap := make(map[string]common_models.User)
	if len(actorIDs) > 0 {
		users, err := s.UserRepo.FindByIDs(ctx, actorIDs)
		if err != nil {
			s.Logger.Warn("failed to resolve audit actors", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		for _, user := range users {
			userMap[user.ID] = user
		}
	}

	// Populate Actor Names
	for i, log := range logs {
		if log.ActorID == common_models.SystemActor || log.ActorID == "" {
			logs[i].ActorName = "System"
			continue
		}
		if user, ok := userMap[log.ActorID]; ok {
			logs[i].ActorName = user.Name
			logs[i].ActorEmail = user.Email
		} else {
			logs[i].ActorName = "Unknown User"
		}
	}

	return logs, nil
}

var exportColumns = []string{"Timestamp", "Action", "Actor", "Email", "Old Value", "New Value", "Metadata"}

func (s *AuditServiceImpl) ExportTrail(ctx context.Context, tenantID, entityType, entityID string) ([]byte, string, error) {
	logs, err := s.Trail(ctx, tenantID, entityType, entityID, MaxTrailLimit)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Audit Trail"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, log := range logs {
		values := []any{
			log.Timestamp.Format("2006-01-02 15:04:05"),
			string(log.Action),
			log.ActorName,
			log.ActorEmail,
			jsonCell(log.OldValue),
			jsonCell(log.NewValue),
			jsonCell(log.Metadata),
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("%s_%s_audit.xlsx", entityType, entityID)
	return buf.Bytes(), filename, nil
}

func jsonCell(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
