package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultTxTimeout = 5 * time.Second

type CaseRepository interface {
	Create(ctx context.Context, c *Case) error
	Get(ctx context.Context, tenantID, id string) (*Case, error)
	// UpdateStageAndData writes stage and data, bumps the version and
	// returns the stored case. A version other than expectedVersion
	// yields sentinel.ErrConflict.
	UpdateStageAndData(ctx context.Context, tenantID, id string, expectedVersion int64, stage string, data map[string]any) (*Case, error)
	List(ctx context.Context, tenantID string, filter CaseFilter) ([]Case, int64, error)
	ListInStage(ctx context.Context, tenantID, workflowID, stage string) ([]Case, error)
	EnsureIndexes(ctx context.Context) error
}

// TxRunner runs fn atomically. Writes made through the repository handed
// to fn are discarded when fn returns an error.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context, repo CaseRepository) error) error
}

// withTxTimeout bounds a transaction when the caller set no deadline.
func withTxTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

type CaseRepositoryImpl struct {
	Client     *mongo.Client
	Collection *mongo.Collection
	TxTimeout  time.Duration
}

func NewCaseRepository(mongodb *database.MongodbDB, cfg *config.Config) *CaseRepositoryImpl {
	return &CaseRepositoryImpl{
		Client:     mongodb.Client,
		Collection: mongodb.DB.Collection("cases"),
		TxTimeout:  cfg.TxTimeout,
	}
}

func (r *CaseRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "workflow_id", Value: 1}, {Key: "current_stage", Value: 1}},
			Options: options.Index().SetName("tenant_workflow_stage"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("tenant_created"),
		},
	})
	return err
}

func (r *CaseRepositoryImpl) RunInTx(ctx context.Context, fn func(txCtx context.Context, repo CaseRepository) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	ctx, cancel := withTxTimeout(ctx, r.TxTimeout)
	defer cancel()

	session, err := r.Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	// The transaction is run once. A write conflict is reported to the
	// caller instead of re-running fn against the winner's state.
	if err := session.StartTransaction(); err != nil {
		return err
	}
	sc := mongo.NewSessionContext(ctx, session)
	if err := fn(sc, r); err != nil {
		_ = session.AbortTransaction(context.WithoutCancel(ctx))
		return conflictFromTx(err)
	}

	for attempt := 1; ; attempt++ {
		err = session.CommitTransaction(sc)
		if err == nil {
			return nil
		}
		if attempt < commitAttempts && hasErrorLabel(err, unknownCommitResult) && ctx.Err() == nil {
			continue
		}
		return conflictFromTx(err)
	}
}

const (
	transientTxError    = "TransientTransactionError"
	unknownCommitResult = "UnknownTransactionCommitResult"
	commitAttempts      = 3
)

func hasErrorLabel(err error, label string) bool {
	var labeled mongo.LabeledError
	return errors.As(err, &labeled) && labeled.HasErrorLabel(label)
}

// conflictFromTx maps a transient transaction failure (a write conflict
// with a concurrent transition) to sentinel.ErrConflict.
func conflictFromTx(err error) error {
	if hasErrorLabel(err, transientTxError) {
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	}
	return err
}

func (r *CaseRepositoryImpl) Create(ctx context.Context, c *Case) error {
	if _, err := r.Collection.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *CaseRepositoryImpl) Get(ctx context.Context, tenantID, id string) (*Case, error) {
	var c Case
	err := r.Collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepositoryImpl) UpdateStageAndData(ctx context.Context, tenantID, id string, expectedVersion int64, stage string, data map[string]any) (*Case, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{
		"$set": bson.M{
			"current_stage": stage,
			"data":          data,
			"updated_at":    time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	var c Case
	err := r.Collection.FindOneAndUpdate(ctx, bson.M{
		"_id":       id,
		"tenant_id": tenantID,
		"version":   expectedVersion,
	}, update, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := r.Get(ctx, tenantID, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("case %s changed since version %d: %w", id, expectedVersion, sentinel.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepositoryImpl) List(ctx context.Context, tenantID string, filter CaseFilter) ([]Case, int64, error) {
	filter = filter.Normalize()
	query := bson.M{"tenant_id": tenantID}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.AssignedTo != "" {
		query["assigned_to"] = filter.AssignedTo
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.WorkflowID != "" {
		query["workflow_id"] = filter.WorkflowID
	}

	total, err := r.Collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(filter.Limit).
		SetSkip(filter.Offset)
	cursor, err := r.Collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	out := []Case{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *CaseRepositoryImpl) ListInStage(ctx context.Context, tenantID, workflowID, stage string) ([]Case, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{
		"tenant_id":     tenantID,
		"workflow_id":   workflowID,
		"current_stage": stage,
		"status":        StatusActive,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []Case{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
