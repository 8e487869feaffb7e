package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DefinitionRepository interface {
	FindActive(ctx context.Context, tenantID, workflowID string) (*Definition, error)
	FindVersion(ctx context.Context, tenantID, workflowID string, version int) (*Definition, error)
	ListActive(ctx context.Context, tenantID string) ([]Definition, error)
	ListAllActive(ctx context.Context) ([]Definition, error)
	// CreateVersion assigns def.Version = max+1, deactivates the other
	// versions when def.IsActive and inserts def, all in one transaction.
	// A concurrent writer for the same workflow yields sentinel.ErrConflict.
	CreateVersion(ctx context.Context, def *Definition) error
	EnsureIndexes(ctx context.Context) error
}

type DefinitionRepositoryImpl struct {
	Client     *mongo.Client
	Collection *mongo.Collection
}

func NewDefinitionRepository(mongodb *database.MongodbDB) DefinitionRepository {
	return &DefinitionRepositoryImpl{
		Client:     mongodb.Client,
		Collection: mongodb.DB.Collection("workflow_definitions"),
	}
}

func (r *DefinitionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "workflow_id", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tenant_workflow_version"),
		},
		{
			Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "workflow_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("tenant_workflow_single_active").
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "is_active", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetName("tenant_active_name"),
		},
	})
	return err
}

func (r *DefinitionRepositoryImpl) FindActive(ctx context.Context, tenantID, workflowID string) (*Definition, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var def Definition
	err := r.Collection.FindOne(ctx, bson.M{
		"tenant_id":   tenantID,
		"workflow_id": workflowID,
		"is_active":   true,
	}, opts).Decode(&def)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *DefinitionRepositoryImpl) FindVersion(ctx context.Context, tenantID, workflowID string, version int) (*Definition, error) {
	var def Definition
	err := r.Collection.FindOne(ctx, bson.M{
		"tenant_id":   tenantID,
		"workflow_id": workflowID,
		"version":     version,
	}).Decode(&def)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *DefinitionRepositoryImpl) ListActive(ctx context.Context, tenantID string) ([]Definition, error) {
	return r.find(ctx, bson.M{"tenant_id": tenantID, "is_active": true})
}

func (r *DefinitionRepositoryImpl) ListAllActive(ctx context.Context) ([]Definition, error) {
	return r.find(ctx, bson.M{"is_active": true})
}

func (r *DefinitionRepositoryImpl) find(ctx context.Context, filter bson.M) ([]Definition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "workflow_id", Value: 1}})
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	defs := []Definition{}
	if err := cursor.All(ctx, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *DefinitionRepositoryImpl) CreateVersion(ctx context.Context, def *Definition) error {
	session, err := r.Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		scope := bson.M{"tenant_id": def.TenantID, "workflow_id": def.WorkflowID}

		var latest struct {
			Version int `bson:"version"`
		}
		err := r.Collection.FindOne(sc, scope, options.FindOne().
			SetSort(bson.D{{Key: "version", Value: -1}}).
			SetProjection(bson.M{"version": 1})).Decode(&latest)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		def.Version = latest.Version + 1

		if def.IsActive {
			deactivate := bson.M{"tenant_id": def.TenantID, "workflow_id": def.WorkflowID, "is_active": true}
			if _, err := r.Collection.UpdateMany(sc, deactivate, bson.M{"$set": bson.M{"is_active": false}}); err != nil {
				return nil, err
			}
		}

		if _, err := r.Collection.InsertOne(sc, def); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("workflow %s version %d: %w", def.WorkflowID, def.Version, sentinel.ErrConflict)
		}
		return err
	}
	return nil
}
