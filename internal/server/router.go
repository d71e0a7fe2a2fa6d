package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nkosei/brightpath-backend/internal/handlers"
	"github.com/nkosei/brightpath-backend/internal/middleware"
)

type RouterConfig struct {
	GenerationHandler  *handlers.GenerationHandler
	IdentityMiddleware *middleware.IdentityMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("brightpath-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.IdentityMiddleware.RequireIdentity())
	{
		api.POST("/generation/lesson", cfg.GenerationHandler.GenerateLesson)
		api.POST("/generation/slides/:lesson_id/regenerate/:index", cfg.GenerationHandler.RegenerateSlide)
	}

	return router
}
