package audit

import (
	"context"
	"sort"
	"sync"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditRepository interface {
	Create(ctx context.Context, log common_models.AuditLog) error
	ListByEntity(ctx context.Context, tenantID, entityType, entityID string, limit int64) ([]common_models.AuditLog, error)
	EnsureIndexes(ctx context.Context) error
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("audit_logs"),
	}
}

func (r *AuditRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "entity_type", Value: 1},
			{Key: "entity_id", Value: 1},
			{Key: "timestamp", Value: -1},
		},
		Options: options.Index().SetName("tenant_entity_timestamp"),
	})
	return err
}

func (r *AuditRepositoryImpl) Create(ctx context.Context, log common_models.AuditLog) error {
	_, err := r.Collection.InsertOne(ctx, log)
	return err
}

func (r *AuditRepositoryImpl) ListByEntity(ctx context.Context, tenantID, entityType, entityID string, limit int64) ([]common_models.AuditLog, error) {
	opts := options.Find().SetLimit(limit).SetSort(bson.D{{Key: "timestamp", Value: -1}})

	query := bson.M{
		"tenant_id":   tenantID,
		"entity_type": entityType,
		"entity_id":   entityID,
	}

	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	logs := []common_models.AuditLog{}
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// MemoryAuditRepository is an in-process append-only log.
type MemoryAuditRepository struct {
	mu   sync.RWMutex
	logs []common_models.AuditLog
	// Fail, when set, is returned by Create.
	Fail error
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) EnsureIndexes(context.Context) error { return nil }

func (r *MemoryAuditRepository) Create(_ context.Context, log common_models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.logs = append(r.logs, log)
	return nil
}

func (r *MemoryAuditRepository) ListByEntity(_ context.Context, tenantID, entityType, entityID string, limit int64) ([]common_models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []common_models.AuditLog{}
	for _, l := range r.logs {
		if l.TenantID == tenantID && l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	// Newest first; stable so equal timestamps keep reverse insertion order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored entry in insertion order.
func (r *MemoryAuditRepository) All() []common_models.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]common_models.AuditLog(nil), r.logs...)
}
