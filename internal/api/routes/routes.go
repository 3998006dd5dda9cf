package routes

import (
	"pcstyle-auth/internal/api/handlers"
	"pcstyle-auth/internal/api/middleware"
	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/events"
	"pcstyle-auth/internal/identity"
	"pcstyle-auth/internal/models"
	"pcstyle-auth/internal/services"
	"pcstyle-auth/internal/session"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, provider *identity.Client, publisher *events.Publisher) error {
	// Session handling
	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return err
	}
	sessions := session.NewManager(store, provider)

	// Initialize services
	syncService := services.NewSyncService(cfg, publisher)
	profileService := services.NewProfileService(cfg, publisher)
	adminService := services.NewAdminService(publisher)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(provider, sessions, profileService, cfg)
	webhookHandler := handlers.NewWebhookHandler(syncService, cfg.WorkOS, cfg.Server.Mode == "debug")
	profileHandler := handlers.NewProfileHandler(profileService, sessions)
	adminHandler := handlers.NewAdminHandler(adminService)
	staticHandler := handlers.NewStaticHandler(cfg.Server.FrontendDir)

	// Middleware
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	r.Use(middleware.LoadSession(sessions, profileService, cfg.Session.TouchInterval))
	r.Use(middleware.RequireSession(cfg.PublicPaths))

	// Browser sign-in flow
	r.GET("/login", authHandler.Login)
	r.GET("/callback", authHandler.Callback)
	r.GET("/logout", authHandler.Logout)

	// Provider webhooks
	r.POST("/workos/webhook", webhookHandler.Receive)

	// Public routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"message": "pcstyle auth API is running",
			})
		})

		api.GET("/me", authHandler.Me)
		api.GET("/auth/signout", authHandler.Logout)
	}

	// Dashboard routes
	protected := api.Group("")
	protected.Use(middleware.RequireActiveUser(profileService))
	{
		protected.GET("/profile", profileHandler.GetProfile)
		protected.PATCH("/profile", profileHandler.UpdateProfile)

		protected.GET("/sessions", profileHandler.GetSessions)
		protected.POST("/sessions", profileHandler.CreateSession)
		protected.DELETE("/sessions/:id", profileHandler.RevokeSession)
		protected.DELETE("/sessions", profileHandler.RevokeAllSessions)

		protected.GET("/apps", profileHandler.GetConnectedApps)
		protected.GET("/export", profileHandler.ExportData)
		protected.DELETE("/account", profileHandler.DeleteAccount)

		// Admin routes
		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/stats", adminHandler.GetStats)
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PUT("/users/:id/role", adminHandler.UpdateRole)
			admin.POST("/users/:id/ban", adminHandler.BanUser)
			admin.POST("/users/:id/unban", adminHandler.UnbanUser)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)
		}
	}

	// Dashboard SPA
	r.NoRoute(staticHandler.Serve)

	return nil
}
