// handlers_imports.go - Import session handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// ImportHandlerImpl implements the ImportHandler interface
type ImportHandlerImpl struct {
	store     storage.Store
	importMgr ImportManager
}

// NewImportHandler creates a new import handler instance
func NewImportHandler(store storage.Store, importMgr ImportManager) ImportHandler {
	return &ImportHandlerImpl{
		store:     store,
		importMgr: importMgr,
	}
}

type startImportRequest struct {
	FileID string `json:"fileId"`
}

// HandleStartImport (re)imports a previously uploaded file
func (h *ImportHandlerImpl) HandleStartImport(c echo.Context) error {
	var req startImportRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	info, err := h.store.Get(req.FileID)
	if err != nil {
		return NewNotFoundError("file", req.FileID)
	}
	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return NewNotFoundError("file", req.FileID)
	}

	sess, err := h.importMgr.StartImport(info.ID, info.Name, path)
	if err != nil {
		return NewInternalError("failed to start import", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleListImports returns all known import sessions, newest first
func (h *ImportHandlerImpl) HandleListImports(c echo.Context) error {
	return c.JSON(http.StatusOK, h.importMgr.ListSessions())
}

// HandleImportStatus returns the current status of an import session
func (h *ImportHandlerImpl) HandleImportStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.importMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// HandleImportProgressStream streams import progress via SSE
func (h *ImportHandlerImpl) HandleImportProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	ctx := c.Request().Context()
	for {
		sess, ok := h.importMgr.GetSession(id)
		if !ok {
			sendSSEData(c, map[string]string{"error": "session not found"})
			return nil
		}

		sendSSEData(c, sess)

		// Stop streaming if complete or error
		if sess.Status == models.SessionStatusComplete ||
			sess.Status == models.SessionStatusError {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		case <-timeout.C:
			sendSSEData(c, map[string]string{"error": "stream timeout"})
			return nil
		}
	}
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

// parseLimit reads a positive limit query value, falling back to def and
// capping at max.
func parseLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
