// handlers_reports.go - Stored UUT report handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/report"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ReportHandlerImpl implements the ReportHandler interface
type ReportHandlerImpl struct {
	reports ReportQuerier
}

// NewReportHandler creates a new report handler instance
func NewReportHandler(reports ReportQuerier) ReportHandler {
	return &ReportHandlerImpl{reports: reports}
}

type listReportsResponse struct {
	Reports []models.UUTSummary `json:"reports"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// HandleListReports returns report summaries, filtered by serial, part number and status
func (h *ReportHandlerImpl) HandleListReports(c echo.Context) error {
	params := report.ListParams{
		SerialNumber: c.QueryParam("serial"),
		PartNumber:   c.QueryParam("partNumber"),
		Limit:        parseLimit(c.QueryParam("limit"), 100, 1000),
	}

	if raw := c.QueryParam("status"); raw != "" {
		status, err := models.ParseUUTStatus(raw)
		if err != nil {
			return NewBadRequestError("invalid status", err)
		}
		params.Status = status
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return NewValidationError("offset")
		}
		params.Offset = offset
	}

	list, total, err := h.reports.List(c.Request().Context(), params)
	if err != nil {
		return NewInternalError("failed to list reports", err)
	}

	return c.JSON(http.StatusOK, listReportsResponse{
		Reports: list,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
	})
}

// HandleGetReport returns the full report tree as JSON
func (h *ReportHandlerImpl) HandleGetReport(c echo.Context) error {
	r, err := h.getReport(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// HandleGetReportMsgpack returns the full report tree as msgpack
func (h *ReportHandlerImpl) HandleGetReportMsgpack(c echo.Context) error {
	r, err := h.getReport(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(r)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *ReportHandlerImpl) getReport(c echo.Context) (*models.UUTReport, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}

	r, err := h.reports.Get(c.Request().Context(), id)
	if errors.Is(err, report.ErrReportNotFound) {
		return nil, NewNotFoundError("report", id)
	}
	if err != nil {
		return nil, NewInternalError("failed to load report", err)
	}
	return r, nil
}

// HandleReportStats returns report counts per status
func (h *ReportHandlerImpl) HandleReportStats(c echo.Context) error {
	stats, err := h.reports.Stats(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to compute stats", err)
	}

	total := 0
	for _, n := range stats {
		total += n
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":    total,
		"byStatus": stats,
	})
}
