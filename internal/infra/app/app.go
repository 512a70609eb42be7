package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/infra/config"
	"github.com/arklim/social-platform-policy/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-policy/internal/infra/kafka"
	"github.com/arklim/social-platform-policy/internal/infra/logger"
	redisinfra "github.com/arklim/social-platform-policy/internal/infra/redis"
	"github.com/arklim/social-platform-policy/internal/infra/telemetry"
	memoryrepo "github.com/arklim/social-platform-policy/internal/repository/memory"
	postgresrepo "github.com/arklim/social-platform-policy/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-policy/internal/repository/redis"
	"github.com/arklim/social-platform-policy/internal/transport/http/routes"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

type Application struct {
	cfg         *config.AppConfig
	engine      *gin.Engine
	logger      *zap.Logger
	pool        *pgxpool.Pool
	redis       *redisinfra.Client
	producer    *kafkainfra.Producer
	delegations *usecase.DelegationService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	// Cache backend selection: single replicas keep resolutions in process
	// memory, multi-replica deployments share them through Redis.
	var hierarchyCache port.HierarchyCache
	var redisClient *redisinfra.Client
	if cfg.Cache.Backend == "redis" {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		hierarchyCache = redisrepo.NewHierarchyCache(redisClient.Client(), cfg.Cache.HierarchyPrefix, cfg.Cache.HierarchyTTL)
		log.Info("using redis hierarchy cache", zap.String("prefix", cfg.Cache.HierarchyPrefix))
	} else {
		hierarchyCache = memoryrepo.NewHierarchyCache()
		log.Info("using in-memory hierarchy cache")
	}

	// Initialize Kafka audit publisher
	var auditPublisher port.AuditPublisher
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			auditPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			auditPublisher = kafkainfra.NewAuditPublisher(producer, log, cfg.App.Name, cfg.App.Env)
			log.Info("kafka audit publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		auditPublisher = kafkainfra.NewStubPublisher(log)
	}

	hierarchyService := usecase.NewHierarchyService(repos.Roles, repos.Permissions, repos.Hierarchy, hierarchyCache, auditPublisher, log).
		WithCacheMetrics(provider)
	overrideService := usecase.NewOverrideService(repos.Overrides, repos.Roles, repos.Permissions, auditPublisher, log)
	bindingService := usecase.NewBindingService(repos.Bindings, repos.Roles, repos.Permissions, auditPublisher, log)
	decisionService := usecase.NewDecisionService(repos.Principals, repos.Roles, repos.Delegations, repos.Bindings, hierarchyService, overrideService, auditPublisher, provider, log)
	delegationService := usecase.NewDelegationService(repos.Delegations, repos.Roles, repos.Principals, auditPublisher, log)
	assignmentService := usecase.NewAssignmentService(repos.Rules, repos.Roles, repos.Principals, auditPublisher, log)
	catalogService := usecase.NewCatalogService(repos.Roles, repos.Permissions, repos.Principals, hierarchyService, auditPublisher, log)

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Database: pool,
		Services: routes.ServiceSet{
			Decisions:   decisionService,
			Hierarchy:   hierarchyService,
			Bindings:    bindingService,
			Overrides:   overrideService,
			Delegations: delegationService,
			Assignments: assignmentService,
			Catalog:     catalogService,
		},
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	engine := routes.Register(deps)

	return &Application{
		cfg:         cfg,
		engine:      engine,
		logger:      log,
		pool:        pool,
		redis:       redisClient,
		producer:    producer,
		delegations: delegationService,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	sweepDone := a.startDelegationSweep(ctx)
	defer func() {
		if sweepDone != nil {
			<-sweepDone
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting policy engine API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// startDelegationSweep runs the periodic expired delegation sweep. Lazy
// expiry at decision time is the primary mechanism; the sweep keeps store
// state and audit records tidy.
func (a *Application) startDelegationSweep(ctx context.Context) <-chan struct{} {
	if !a.cfg.Delegation.SweepEnabled || a.delegations == nil {
		return nil
	}

	interval := a.cfg.Delegation.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.logger.Info("delegation expiry sweep started", zap.Duration("interval", interval))

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				swept, err := a.delegations.ExpireDue(ctx, time.Now().UTC())
				if err != nil {
					a.logger.Warn("delegation sweep failed", zap.Error(err))
					continue
				}
				if swept > 0 {
					a.logger.Info("expired delegations swept", zap.Int("count", swept))
				}
			}
		}
	}()

	return done
}
