package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type MockUserFinder struct {
	Users []common_models.User
	Err   error
	Calls int
}

func (m *MockUserFinder) FindByIDs(_ context.Context, ids []string) ([]common_models.User, error) {
	m.Calls++
	var out []common_models.User
	for _, u := range m.Users {
		for _, id := range ids {
			if u.ID == id {
				out = append(out, u)
			}
		}
	}
	return out, m.Err
}

func TestAppendFillsDefaults(t *testing.T) {
	repo := NewMemoryAuditRepository()
	svc := NewAuditService(repo, &MockUserFinder{}, zap.NewNop())

	svc.Append(context.Background(), common_models.AuditLog{
		TenantID:   "t1",
		EntityType: common_models.EntityCase,
		EntityID:   "c1",
		Action:     common_models.AuditActionCreate,
	})

	logs := repo.All()
	require.Len(t, logs, 1)
	assert.NotEmpty(t, logs[0].ID)
	assert.Equal(t, common_models.SystemActor, logs[0].ActorID)
	assert.False(t, logs[0].Timestamp.IsZero())
}

func TestAppendSwallowsStoreFailure(t *testing.T) {
	core, observed := observer.New(zapcore.ErrorLevel)
	repo := NewMemoryAuditRepository()
	repo.Fail = errors.New("disk full")
	svc := NewAuditService(repo, &MockUserFinder{}, zap.New(core))

	assert.NotPanics(t, func() {
		svc.Append(context.Background(), common_models.AuditLog{TenantID: "t1", EntityID: "c1"})
	})
	assert.Empty(t, repo.All())
	require.Equal(t, 1, observed.Len())
	assert.Equal(t, "failed to write audit entry", observed.All()[0].Message)
}

func TestTrailNewestFirstWithActorNames(t *testing.T) {
	repo := NewMemoryAuditRepository()
	users := &MockUserFinder{Users: []common_models.User{{ID: "u1", Name: "Loan Maker", Email: "maker@demo.com"}}}
	svc := NewAuditService(repo, users, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, actor := range []string{"u1", common_models.SystemActor, "ghost"} {
		svc.Append(ctx, common_models.AuditLog{
			TenantID:   "t1",
			ActorID:    actor,
			EntityType: common_models.EntityCase,
			EntityID:   "c1",
			Action:     common_models.TransitionAuditAction("submit"),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	svc.Append(ctx, common_models.AuditLog{TenantID: "t2", EntityType: common_models.EntityCase, EntityID: "c1"})

	logs, err := svc.Trail(ctx, "t1", common_models.EntityCase, "c1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	assert.Equal(t, "Unknown User", logs[0].ActorName)
	assert.Equal(t, "System", logs[1].ActorName)
	assert.Equal(t, "Loan Maker", logs[2].ActorName)
	assert.Equal(t, "maker@demo.com", logs[2].ActorEmail)
	assert.Equal(t, common_models.AuditAction("TRANSITION_SUBMIT"), logs[0].Action)
	assert.Equal(t, 1, users.Calls, "actors are resolved in one batch")

	limited, err := svc.Trail(ctx, "t1", common_models.EntityCase, "c1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "ghost", limited[0].ActorID)
}

func TestTrailToleratesUserLookupFailure(t *testing.T) {
	repo := NewMemoryAuditRepository()
	svc := NewAuditService(repo, &MockUserFinder{Err: errors.New("users down")}, zap.NewNop())
	ctx := context.Background()

	svc.Append(ctx, common_models.AuditLog{TenantID: "t1", ActorID: "u1", EntityType: "case", EntityID: "c1"})

	logs, err := svc.Trail(ctx, "t1", "case", "c1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Unknown User", logs[0].ActorName)
}

func TestExportTrailWritesWorkbook(t *testing.T) {
	repo := NewMemoryAuditRepository()
	svc := NewAuditService(repo, &MockUserFinder{}, zap.NewNop())
	ctx := context.Background()

	svc.Append(ctx, common_models.AuditLog{
		TenantID:   "t1",
		EntityType: "case",
		EntityID:   "c1",
		Action:     common_models.TransitionAuditAction("approve"),
		OldValue:   map[string]any{"stage": "review"},
		NewValue:   map[string]any{"stage": "done"},
	})

	data, filename, err := svc.ExportTrail(ctx, "t1", "case", "c1")
	require.NoError(t, err)
	assert.Equal(t, "case_c1_audit.xlsx", filename)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	action, err := f.GetCellValue("Audit Trail", "B2")
	require.NoError(t, err)
	assert.Equal(t, "TRANSITION_APPROVE", action)

	newValue, err := f.GetCellValue("Audit Trail", "F2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"done"}`, newValue)
}
