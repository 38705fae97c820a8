package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	appsvc "datasethub/internal/app"
	"datasethub/internal/bootstrap"
	"datasethub/internal/cache"
	"datasethub/internal/platform/rabbitmq"
	"datasethub/internal/repository"
	"datasethub/internal/transport/http/handler"
	"datasethub/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.Mongo)
	datasetRepo := repository.NewDatasetRepository(app.Mongo)
	recordCache := cache.NewDatasetCache(app.Redis, time.Duration(app.Config.Redis.RecordTTLSeconds)*time.Second)
	publisher := rabbitmq.NewDatasetEventPublisher(app.MQConn, app.Config.RabbitMQ.EventQueue)
	datasetService := appsvc.NewDatasetService(
		userRepo,
		datasetRepo,
		app.Blobs,
		recordCache,
		publisher,
		afero.NewOsFs(),
	)
	datasetHandler := handler.NewDatasetHandler(datasetService, app.Config.Upload.MaxFileSizeMB)

	v1 := router.Group("/api/v1")
	datasets := v1.Group("/datasets")
	datasets.Use(middleware.Identity(app.Config.Auth.JWTSecret))
	datasets.POST("/upload", datasetHandler.Upload)
	datasets.POST("/upload/edit", datasetHandler.Edit)
	datasets.DELETE("/:id", datasetHandler.Delete)

	return router
}
