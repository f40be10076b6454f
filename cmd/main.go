package main

import (
	"project-service/internal/access"
	"project-service/internal/audit"
	"project-service/internal/handler"
	"project-service/internal/impersonation"
	"project-service/internal/middleware"
	"project-service/internal/tenancy"
	"project-service/internal/workspace"
	"project-service/pkg/config"
	"project-service/pkg/database"
	"project-service/pkg/jwtutil"
	"project-service/pkg/logger"
	"project-service/pkg/session"
	"project-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting project service...", cfg.LogConfig()...)

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Redis backs the session store and chat message fan-out
	rdb, err := session.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	store := session.NewStore(rdb, &cfg.Session)
	log.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr))

	// Core engine wiring
	guard := tenancy.NewGuard(nil, cfg.Server.Env, log)
	resolver := access.NewResolver(database.GetDB(), cfg.Features)
	cache := workspace.NewCache(database.GetDB(), cfg.Cache.WorkspaceTTL)
	recorder := audit.NewRecorder(database.GetDB(), log)
	manager := impersonation.NewManager(database.GetDB(), store, recorder, log)

	projects := handler.NewProjectHandler(guard, resolver, cache)
	tasks := handler.NewTaskHandler(guard, resolver)
	projectAccess := handler.NewProjectAccessHandler(guard, resolver, recorder)
	taskAccess := handler.NewTaskAccessHandler(guard, resolver, recorder)
	impersonate := handler.NewImpersonationHandler(manager)
	messages := handler.NewMessageHandler(guard, rdb)
	admin := handler.NewAdminHandler(recorder, cache)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", handler.Login)
	auth.POST("/register", handler.Register)

	// API routes - all require authentication. The impersonation overlay
	// runs before tenant checks so an impersonating super-user carries the
	// impersonated tenant context; the client tenant-id check runs on every
	// tenant-scoped route.
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)
	api.Use(middleware.ImpersonationContext(store))
	api.Use(middleware.NoClientTenantID(guard))
	api.Use(middleware.RequireTenantContext(guard))

	projectRoutes := api.Group("/projects")
	projectRoutes.POST("", projects.Create)
	projectRoutes.GET("", projects.List)
	projectRoutes.GET("/:id", projects.Get)
	projectRoutes.PATCH("/:id", projects.Update)
	projectRoutes.DELETE("/:id", projects.Delete)
	projectRoutes.GET("/:id/access", projectAccess.List)
	projectRoutes.POST("/:id/access", projectAccess.Grant)
	projectRoutes.PATCH("/:id/access/:userId", projectAccess.UpdateRole)
	projectRoutes.DELETE("/:id/access/:userId", projectAccess.Revoke)

	taskRoutes := api.Group("/tasks")
	taskRoutes.POST("", tasks.Create)
	taskRoutes.GET("", tasks.List)
	taskRoutes.GET("/:id", tasks.Get)
	taskRoutes.PATCH("/:id", tasks.Update)
	taskRoutes.DELETE("/:id", tasks.Delete)
	taskRoutes.GET("/:id/access", taskAccess.List)
	taskRoutes.POST("/:id/access", taskAccess.Grant)
	taskRoutes.PATCH("/:id/access/:userId", taskAccess.UpdateRole)
	taskRoutes.DELETE("/:id/access/:userId", taskAccess.Revoke)

	roomRoutes := api.Group("/rooms")
	roomRoutes.POST("", messages.CreateRoom)
	roomRoutes.GET("", messages.ListRooms)
	roomRoutes.POST("/:id/join", messages.Join)
	roomRoutes.GET("/:id/messages", messages.ListMessages)
	roomRoutes.POST("/:id/messages", messages.SendMessage)

	// Admin routes - super-user only, gated on the authenticated role so an
	// impersonating super-user can always exit. Impersonation start bodies
	// legitimately carry tenant_id, so the client tenant-id check does not
	// apply here.
	adminRoutes := e.Group("/admin")
	adminRoutes.Use(middleware.AuthMiddleware)
	adminRoutes.Use(middleware.RequireSuperUser)
	adminRoutes.POST("/impersonate/start", impersonate.Start)
	adminRoutes.POST("/users/:userId/impersonate-login", impersonate.StartUser)
	adminRoutes.POST("/impersonate/stop", impersonate.Exit)
	adminRoutes.POST("/impersonation/exit", impersonate.Exit)
	adminRoutes.GET("/impersonation/status", impersonate.Status)
	adminRoutes.POST("/tenants", admin.ProvisionTenant)
	adminRoutes.POST("/tenants/:id/users", admin.ProvisionUser)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
