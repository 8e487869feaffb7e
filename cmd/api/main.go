package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "github.com/Altroz1812/wfm-sep-loanzen/internal/common/api"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/automation"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/cases"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/engine"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/system"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/user"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/logger"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute tags the constructor so Fx adds it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes calls Setup() on every collected route.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	log.Printf("Registering %d routes...\n", len(routes))
	for i, route := range routes {
		log.Printf("Setting up route %d: %T\n", i+1, route)
		route.Setup(app)
	}
	log.Println("All routes registered successfully")
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer starts Fiber in a goroutine and shuts it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

type indexed interface {
	EnsureIndexes(ctx context.Context) error
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	logger *zap.Logger,
	auditRepo audit.AuditRepository,
	userRepo user.UserRepository,
	definitionRepo workflow.DefinitionRepository,
	caseRepo cases.CaseRepository,
) {
	repos := map[string]indexed{
		"audit_logs":           auditRepo,
		"users":                userRepo,
		"workflow_definitions": definitionRepo,
		"cases":                caseRepo,
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				for name, repo := range repos {
					if err := repo.EnsureIndexes(ctx); err != nil {
						logger.Warn("Failed to ensure indexes", zap.String("collection", name), zap.Error(err))
					}
				}
			}()
			return nil
		},
	})
}

// StartScheduler runs scheduled auto-rules for the lifetime of the app.
func StartScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	definitions workflow.DefinitionService,
	caseRepo cases.CaseRepository,
	dispatcher automation.Dispatcher,
	logger *zap.Logger,
) {
	if !cfg.SchedulerEnabled {
		logger.Info("Auto-rule scheduler disabled")
		return
	}
	scheduler := automation.NewScheduler(definitions, caseRepo, dispatcher, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop()
		},
	})
}

// NewRegistry is the registry served on /metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			database.NewDatabase,
			logger.NewLogger,
			NewFiberServer,
			NewRegistry,
			func(reg *prometheus.Registry) prometheus.Registerer { return reg },
			func(reg *prometheus.Registry) prometheus.Gatherer { return reg },

			system.NewHealthController,
			system.NewEventHub,
			NewStores,

			// Audit
			audit.NewAuditRepository,
			audit.NewAuditService,
			audit.NewAuditController,

			// Users double as the role provider of the engine
			user.NewUserRepository,
			func(r user.UserRepository) audit.UserFinder { return r },
			user.NewUserService,
			user.NewUserController,
			func(s user.UserService) engine.RoleProvider { return s },

			// Workflow definitions
			workflow.NewDefinitionService,
			workflow.NewWorkflowController,

			// Automation
			fx.Annotate(automation.NewHTTPEndpoint, fx.As(new(automation.AutomationEndpoint))),
			automation.NewActionExecutor,
			automation.NewDispatcher,
			func(d automation.Dispatcher) engine.AutoRuleDispatcher { return d },

			// Cases and engine
			cases.NewCaseService,
			engine.NewMetrics,
			engine.NewWorkflowEngine,
			engine.NewCaseController,

			AsRoute(workflow.NewWorkflowApi),
			AsRoute(engine.NewCaseApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(user.NewUserApi),
			AsRoute(system.NewSystemApi),
			AsRoute(system.NewWebSocketApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },
			func(e engine.WorkflowEngine, hub *system.EventHub) { e.Subscribe(hub) },
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartScheduler,
			InitializeIndexes,
		),
	)

	app.Run()
}
