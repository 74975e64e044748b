// handlers_files.go - Log file upload handlers
package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// allowedLogExtensions lists the upload extensions accepted as tester logs
var allowedLogExtensions = map[string]bool{
	".log": true,
	".txt": true,
	".csv": true,
	".dat": true,
	"":     true,
}

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store     storage.Store
	importMgr ImportManager
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store, importMgr ImportManager) FileHandler {
	return &FileHandlerImpl{
		store:     store,
		importMgr: importMgr,
	}
}

// uploadResponse is returned when an upload was stored and its import started
type uploadResponse struct {
	File    *models.FileInfo      `json:"file"`
	Session *models.ImportSession `json:"session,omitempty"`
}

// HandleUploadFile accepts a multipart log file, stores it and starts its import
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedLogExtensions[ext] {
		return NewBadRequestError("unsupported file type: "+ext, nil)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	if c.QueryParam("import") == "false" || h.importMgr == nil {
		return c.JSON(http.StatusCreated, uploadResponse{File: info})
	}

	path, err := h.store.GetFilePath(info.ID)
	if err != nil {
		return NewInternalError("failed to resolve stored file", err)
	}

	sess, err := h.importMgr.StartImport(info.ID, info.Name, path)
	if err != nil {
		return NewInternalError("failed to start import", err)
	}

	return c.JSON(http.StatusAccepted, uploadResponse{File: info, Session: sess})
}

// HandleGetRecentFiles returns recently uploaded log files
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := parseLimit(c.QueryParam("limit"), 20, 200)

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}

	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes an uploaded file. Reports imported from it are kept.
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}

	return c.NoContent(http.StatusNoContent)
}
