// routes.go - Route registration helpers
package api

import (
	"github.com/ict-report/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store     storage.Store
	ImportMgr ImportManager
	Reports   ReportQuerier
	Feed      *ReportFeed
	// StoreHealth reports report store failures on /api/health; may be nil.
	StoreHealth SubmitErrorSource
	Version     string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Files   FileHandler
	Imports ImportHandler
	Reports ReportHandler
	Feed    *ReportFeed
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.StoreHealth),
		Files:   NewFileHandler(deps.Store, deps.ImportMgr),
		Imports: NewImportHandler(deps.Store, deps.ImportMgr),
		Reports: NewReportHandler(deps.Reports),
		Feed:    deps.Feed,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Health check
	api.GET("/health", handlers.Health.HandleHealth)

	// File upload routes
	files := api.Group("/files")
	files.POST("/upload", handlers.Files.HandleUploadFile)
	files.GET("/recent", handlers.Files.HandleGetRecentFiles)
	files.GET("/:id", handlers.Files.HandleGetFile)
	files.DELETE("/:id", handlers.Files.HandleDeleteFile)

	// Import session routes
	imports := api.Group("/imports")
	imports.POST("", handlers.Imports.HandleStartImport)
	imports.GET("", handlers.Imports.HandleListImports)
	imports.GET("/:sessionId", handlers.Imports.HandleImportStatus)
	imports.GET("/:sessionId/progress", handlers.Imports.HandleImportProgressStream)

	// Report routes
	reports := api.Group("/reports")
	reports.GET("", handlers.Reports.HandleListReports)
	reports.GET("/stats", handlers.Reports.HandleReportStats)
	reports.GET("/:id", handlers.Reports.HandleGetReport)
	reports.GET("/:id/msgpack", handlers.Reports.HandleGetReportMsgpack)

	// Live feed
	if handlers.Feed != nil {
		api.GET("/ws/reports", handlers.Feed.HandleWebSocket)
	}
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, logger *zap.Logger, enableCORS bool, allowOrigins []string, bodyLimit string, requestLogging bool) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())

	if requestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogURI:     true,
			LogStatus:  true,
			LogMethod:  true,
			LogLatency: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				logger.Info("request",
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency))
				return nil
			},
		}))
	}

	if enableCORS {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: allowOrigins,
		}))
	}

	if bodyLimit != "" {
		e.Use(middleware.BodyLimit(bodyLimit))
	}
}
