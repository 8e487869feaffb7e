package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/cases"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/user"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/logger"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/utils"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	demoTenantID = "550e8400-e29b-41d4-a716-446655440000"
	seedActorID  = "seed"

	workflowPath = "cmd/seed/data/micro_loan_process.json"
	usersPath    = "cmd/seed/data/users.json"
)

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// NewSeedStores opens the case and definition stores selected by STORE_DRIVER.
func NewSeedStores(lc fx.Lifecycle, cfg *config.Config, mongodb *database.MongodbDB) (cases.CaseRepository, workflow.DefinitionRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		return cases.NewCaseRepository(mongodb, cfg), workflow.NewDefinitionRepository(mongodb), nil
	case config.StoreDriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TxTimeout*4)
		defer cancel()
		pg, err := database.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return pg.Close() }})
		return cases.NewPostgresCaseRepository(pg, cfg), workflow.NewPostgresDefinitionRepository(pg), nil
	}
	return nil, nil, fmt.Errorf("cannot seed STORE_DRIVER %q", cfg.StoreDriver)
}

// Seed creates the demo tenant's loan workflow, users and a few draft cases.
func Seed(
	lc fx.Lifecycle,
	cfg *config.Config,
	userRepo user.UserRepository,
	userService user.UserService,
	definitions workflow.DefinitionService,
	caseService cases.CaseService,
	logger *zap.Logger,
	shutdowner fx.Shutdowner,
) {
	utils.SetSecret(cfg.JWTSecret)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						logger.Error("Failed to shutdown", zap.Error(err))
					}
				}()

				ctx := context.Background()
				logger.Info("Starting seed", zap.String("tenant", demoTenantID))

				var draft workflow.DefinitionDraft
				if err := readJSON(workflowPath, &draft); err != nil {
					logger.Error("Failed to read workflow", zap.Error(err))
					return
				}
				if def, err := definitions.Get(ctx, demoTenantID, draft.WorkflowID, nil); err == nil {
					logger.Info("Workflow exists, skipping", zap.String("workflow", def.WorkflowID), zap.Int("version", def.Version))
				} else if errors.Is(err, sentinel.ErrNotFound) {
					def, err := definitions.Create(ctx, demoTenantID, seedActorID, draft)
					if err != nil {
						logger.Error("Failed to create workflow", zap.Error(err))
						return
					}
					logger.Info("Workflow created", zap.String("workflow", def.WorkflowID), zap.Int("version", def.Version))
				} else {
					logger.Error("Failed to look up workflow", zap.Error(err))
					return
				}

				var demoUsers []user.CreateUserInput
				if err := readJSON(usersPath, &demoUsers); err != nil {
					logger.Error("Failed to read users", zap.Error(err))
					return
				}

				var makerID string
				for _, in := range demoUsers {
					u, err := userRepo.FindByEmail(ctx, demoTenantID, in.Email)
					if errors.Is(err, sentinel.ErrNotFound) {
						u, err = userService.CreateUser(ctx, demoTenantID, seedActorID, in)
					}
					if err != nil {
						logger.Error("Failed to seed user", zap.String("email", in.Email), zap.Error(err))
						continue
					}
					if u.Role == user.RoleMaker {
						makerID = u.ID
					}

					token, err := utils.GenerateToken(u.ID, demoTenantID, u.Role)
					if err != nil {
						logger.Error("Failed to sign token", zap.String("email", u.Email), zap.Error(err))
						continue
					}
					fmt.Printf("%-24s %-20s %s\n", u.Email, u.Role, token)
				}

				if makerID == "" {
					logger.Warn("No maker seeded, skipping cases")
					return
				}
				_, total, err := caseService.List(ctx, demoTenantID, cases.CaseFilter{WorkflowID: draft.WorkflowID, Limit: 1})
				if err != nil {
					logger.Error("Failed to list cases", zap.Error(err))
					return
				}
				if total > 0 {
					logger.Info("Cases exist, skipping", zap.Int64("total", total))
					return
				}
				for i, borrower := range []string{"Rajesh Kumar", "Priya Sharma", "Amit Patel"} {
					c, err := caseService.Create(ctx, demoTenantID, makerID, cases.CreateCaseInput{
						Type:       cases.TypeLoan,
						WorkflowID: draft.WorkflowID,
						Data: map[string]any{
							"loanType":        "micro",
							"purpose":         "business",
							"borrower":        borrower,
							"requestedAmount": 50000 + i*25000,
							"tenor":           12,
						},
					})
					if err != nil {
						logger.Error("Failed to create case", zap.Error(err))
						continue
					}
					logger.Info("Case created", zap.String("case", c.ID), zap.String("borrower", borrower))
				}

				logger.Info("Seeding complete")
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			database.NewDatabase,
			NewSeedStores,
			audit.NewAuditRepository,
			audit.NewAuditService,
			user.NewUserRepository,
			func(r user.UserRepository) audit.UserFinder { return r },
			user.NewUserService,
			workflow.NewDefinitionService,
			cases.NewCaseService,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(Seed),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}

	<-app.Done()
}
