package main

import (
	"context"
	"fmt"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/cases"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/system"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Stores are the backends of cases and workflow definitions selected by
// STORE_DRIVER. Audit logs and users always live in MongoDB.
type Stores struct {
	fx.Out

	Cases       cases.CaseRepository
	Tx          cases.TxRunner
	Definitions workflow.DefinitionRepository
}

func NewStores(
	lc fx.Lifecycle,
	cfg *config.Config,
	mongodb *database.MongodbDB,
	health *system.HealthController,
	logger *zap.Logger,
) (Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		caseRepo := cases.NewCaseRepository(mongodb, cfg)
		return Stores{
			Cases:       caseRepo,
			Tx:          caseRepo,
			Definitions: workflow.NewDefinitionRepository(mongodb),
		}, nil

	case config.StoreDriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TxTimeout*4)
		defer cancel()

		pg, err := database.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return Stores{}, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return Stores{}, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				logger.Info("Closing PostgreSQL pool")
				return pg.Close()
			},
		})
		health.AddCheck("postgres", pg)

		caseRepo := cases.NewPostgresCaseRepository(pg, cfg)
		return Stores{
			Cases:       caseRepo,
			Tx:          caseRepo,
			Definitions: workflow.NewPostgresDefinitionRepository(pg),
		}, nil

	case config.StoreDriverMemory:
		logger.Warn("Using in-memory case and definition stores; data is lost on restart")
		caseRepo := cases.NewMemoryCaseRepository()
		return Stores{
			Cases:       caseRepo,
			Tx:          caseRepo,
			Definitions: workflow.NewMemoryDefinitionRepository(),
		}, nil
	}
	return Stores{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}
