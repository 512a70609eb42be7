package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/infra/config"
	"github.com/arklim/social-platform-policy/internal/transport/http/handlers"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Decisions   *usecase.DecisionService
	Hierarchy   *usecase.HierarchyService
	Bindings    *usecase.BindingService
	Overrides   *usecase.OverrideService
	Delegations *usecase.DelegationService
	Assignments *usecase.AssignmentService
	Catalog     *usecase.CatalogService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{}); err == nil {
		r.Use(httpMetrics.Handler())
	} else if deps.Logger != nil {
		deps.Logger.Warn("failed to register http metrics", zap.Error(err))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requirePrincipal := middleware.RequirePrincipal()

	api := r.Group("/api/v1")
	{
		decisionHandler := handlers.NewDecisionHandler(deps.Services.Decisions)
		decisionHandler.RegisterRoutes(api.Group("/decisions"))

		hierarchyHandler := handlers.NewHierarchyHandler(deps.Services.Hierarchy)
		hierarchyGroup := api.Group("/hierarchy")
		hierarchyGroup.Use(requirePrincipal)
		hierarchyHandler.RegisterRoutes(hierarchyGroup)

		bindingHandler := handlers.NewBindingHandler(deps.Services.Bindings)
		bindingGroup := api.Group("/bindings")
		bindingGroup.Use(requirePrincipal)
		bindingHandler.RegisterRoutes(bindingGroup)

		overrideHandler := handlers.NewOverrideHandler(deps.Services.Overrides)
		overrideGroup := api.Group("/overrides")
		overrideGroup.Use(requirePrincipal)
		overrideHandler.RegisterRoutes(overrideGroup)

		delegationHandler := handlers.NewDelegationHandler(deps.Services.Delegations)
		delegationGroup := api.Group("/delegations")
		delegationGroup.Use(requirePrincipal)
		delegationHandler.RegisterRoutes(delegationGroup)

		ruleHandler := handlers.NewRuleHandler(deps.Services.Assignments)
		ruleGroup := api.Group("/rules")
		ruleGroup.Use(requirePrincipal)
		ruleHandler.RegisterRoutes(ruleGroup)

		api.POST("/events", ruleHandler.OnEvent)

		if deps.Services.Catalog != nil {
			catalogHandler := handlers.NewCatalogHandler(deps.Services.Catalog)

			rolesGroup := api.Group("/roles")
			catalogHandler.RegisterRoleRoutes(rolesGroup)
			rolesGroup.GET("/:id/effective-permissions", hierarchyHandler.EffectivePermissions)

			catalogHandler.RegisterPermissionRoutes(api.Group("/permissions"))

			principalsGroup := api.Group("/principals")
			principalsGroup.Use(requirePrincipal)
			catalogHandler.RegisterPrincipalRoutes(principalsGroup)
		}
	}

	handlers.RegisterSwagger(r)

	return r
}
