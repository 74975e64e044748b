// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// SubmitErrorSource exposes the last error a report sink hit while storing.
type SubmitErrorSource interface {
	LastError() error
}

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	started time.Time
	sink    SubmitErrorSource
}

// NewHealthHandler creates a new health handler. sink may be nil.
func NewHealthHandler(version string, sink SubmitErrorSource) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		started: time.Now(),
		sink:    sink,
	}
}

// HandleHealth returns server health status. A failing report store degrades
// the status but still answers 200 so the UI can show the error.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
	}
	if h.sink != nil {
		if err := h.sink.LastError(); err != nil {
			resp["status"] = "degraded"
			resp["storeError"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, resp)
}
