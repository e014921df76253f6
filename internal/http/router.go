package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/cst_tracker/backend/internal/config"
	"github.com/cst_tracker/backend/internal/db"
	"github.com/cst_tracker/backend/internal/http/handlers"
	"github.com/cst_tracker/backend/internal/http/middleware"
	"github.com/cst_tracker/backend/internal/service"

	_ "github.com/cst_tracker/backend/docs"
)

func Router(cfg config.Config, store *db.Store, lifecycle *service.LifecycleService, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Staff-Key", "X-Request-Id", "X-Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     store,
		Lifecycle: lifecycle,
		Validator: validator.New(),
		Logger:    logger,
		Zones:     lifecycle.Zones,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/requests", h.CreateRequest)
		api.GET("/requests", h.ListRequests)
		api.GET("/requests/nearby/search", h.NearbyRequests)
		api.GET("/requests/:id", h.GetRequest)
		api.GET("/requests/:id/log", h.GetRequestLog)
		api.GET("/requests/:id/sla", h.EvaluateSLA)
		api.POST("/requests/:id/rating", h.RateRequest)

		api.GET("/agents", h.ListAgents)
		api.GET("/agents/:id", h.GetAgent)

		api.POST("/citizens", h.CreateCitizen)
		api.GET("/citizens", h.ListCitizens)
		api.GET("/citizens/lookup", h.LookupCitizen)
		api.GET("/citizens/:id", h.GetCitizen)
		api.PUT("/citizens/:id", h.UpdateCitizen)
		api.GET("/citizens/:id/requests", h.ListCitizenRequests)
		api.GET("/citizens/:id/statistics", h.CitizenStatistics)
		api.POST("/citizens/:id/request-verification", h.RequestVerification)
		api.POST("/citizens/:id/verify", h.VerifyCitizen)

		api.GET("/categories", h.ListCategories)
		api.GET("/categories/:id", h.GetCategory)
	}

	staff := api.Group("")
	staff.Use(middleware.StaffKey(cfg.StaffKey))
	{
		staff.PATCH("/requests/:id/transition", h.TransitionRequest)
		staff.POST("/requests/:id/auto-assign", h.AutoAssign)
		staff.POST("/requests/:id/assign", h.ManualAssign)
		staff.POST("/requests/:id/milestone", h.RecordMilestone)
		staff.POST("/requests/:id/escalate", h.EscalateRequest)
		staff.DELETE("/requests/:id", h.DeleteRequest)
		staff.GET("/logs", h.ListLogs)

		staff.POST("/agents", h.CreateAgent)
		staff.PUT("/agents/:id", h.UpdateAgent)
		staff.DELETE("/agents/:id", h.DeleteAgent)
		staff.GET("/agents/workloads", h.AgentWorkloads)

		staff.DELETE("/citizens/:id", h.DeleteCitizen)

		staff.POST("/categories", h.CreateCategory)
		staff.PUT("/categories/:id", h.UpdateCategory)
		staff.DELETE("/categories/:id", h.DeleteCategory)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
