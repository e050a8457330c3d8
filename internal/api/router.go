package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mealvault/mealvault/internal/app"
	"github.com/mealvault/mealvault/internal/backup"
	"github.com/mealvault/mealvault/internal/handlers"
	"github.com/mealvault/mealvault/internal/middleware"
	"github.com/mealvault/mealvault/internal/repository"
)

// Deps carries the constructed services the router exposes. Gate serialises
// backup operations against repository traffic; when nil the router owns a
// private one.
type Deps struct {
	Repo    *repository.MealRepository
	Backups *backup.Coordinator
	Config  *app.Config
	Gate    *sync.RWMutex
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
// Meal routes hold the shared gate's read side so they run concurrently;
// backup routes take the exclusive side because they close the store file.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("meal repository must be provided")
	}
	if deps.Backups == nil {
		return nil, fmt.Errorf("backup coordinator must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	gate := deps.Gate
	if gate == nil {
		gate = &sync.RWMutex{}
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}

	mealHandler := handlers.NewMealHandler(deps.Repo)
	watchHandler := handlers.NewWatchHandler(deps.Repo)
	backupHandler := handlers.NewBackupHandler(deps.Backups)

	// Meals
	meals := r.Group("/api/meals")
	meals.Use(middleware.ReadGate(gate))
	{
		meals.GET("", mealHandler.List)
		meals.GET("/:id", mealHandler.Get)
		meals.POST("", mealHandler.Create)
		meals.POST("/batch", mealHandler.CreateBatch)
		meals.PUT("/:id", mealHandler.Update)
		meals.DELETE("/:id", mealHandler.Delete)
	}

	// Watch streams are long-lived and never touch the store directly, so
	// they stay outside the gate; holding the read side open would starve
	// backup runs.
	r.GET("/api/meals/:id/watch", watchHandler.Stream)

	// Backups
	backups := r.Group("/api/backups")
	backups.Use(middleware.WriteGate(gate))
	{
		backups.POST("", backupHandler.Create)
		backups.GET("", backupHandler.List)
		backups.POST("/:id/restore", backupHandler.Restore)
		backups.DELETE("/:id", backupHandler.Delete)
		backups.GET("/export", backupHandler.Export)
		backups.POST("/import", backupHandler.Import)
	}

	// Metrics endpoint
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
