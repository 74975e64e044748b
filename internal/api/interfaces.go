// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/report"
	"github.com/labstack/echo/v4"
)

// FileHandler handles log file upload operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// ImportHandler handles import session operations
type ImportHandler interface {
	HandleStartImport(c echo.Context) error
	HandleListImports(c echo.Context) error
	HandleImportStatus(c echo.Context) error
	HandleImportProgressStream(c echo.Context) error
}

// ReportHandler handles queries against stored UUT reports
type ReportHandler interface {
	HandleListReports(c echo.Context) error
	HandleGetReport(c echo.Context) error
	HandleGetReportMsgpack(c echo.Context) error
	HandleReportStats(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// ImportManager defines the interface for import session management
// This allows mocking in tests
type ImportManager interface {
	StartImport(fileID, fileName, filePath string) (*models.ImportSession, error)
	GetSession(id string) (*models.ImportSession, bool)
	ListSessions() []*models.ImportSession
}

// ReportQuerier reads stored reports.
type ReportQuerier interface {
	List(ctx context.Context, params report.ListParams) ([]models.UUTSummary, int, error)
	Get(ctx context.Context, id string) (*models.UUTReport, error)
	Stats(ctx context.Context) (map[models.UUTStatus]int, error)
}
