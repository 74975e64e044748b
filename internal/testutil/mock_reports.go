// mock_reports.go - In-memory report querier for handler tests
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/report"
)

// MockReports keeps submitted reports in memory and answers report queries.
// It implements parser.Submitter and api.ReportQuerier.
type MockReports struct {
	mu      sync.RWMutex
	reports []*models.UUTReport
	// Err, when set, is returned by every query.
	Err error
}

func NewMockReports(reports ...*models.UUTReport) *MockReports {
	return &MockReports{reports: reports}
}

func (m *MockReports) Submit(r *models.UUTReport) {
	m.mu.Lock()
	m.reports = append(m.reports, r)
	m.mu.Unlock()
}

func (m *MockReports) List(ctx context.Context, params report.ListParams) ([]models.UUTSummary, int, error) {
	if m.Err != nil {
		return nil, 0, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.UUTSummary
	for _, r := range m.reports {
		if params.SerialNumber != "" && r.SerialNumber != params.SerialNumber {
			continue
		}
		if params.PartNumber != "" && r.PartNumber != params.PartNumber {
			continue
		}
		if params.Status != "" && r.Status != params.Status {
			continue
		}
		matched = append(matched, r.Summary())
	}

	total := len(matched)
	if params.Offset >= total {
		return []models.UUTSummary{}, total, nil
	}
	matched = matched[params.Offset:]
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func (m *MockReports) Get(ctx context.Context, id string) (*models.UUTReport, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", report.ErrReportNotFound, id)
}

func (m *MockReports) Stats(ctx context.Context) (map[models.UUTStatus]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[models.UUTStatus]int)
	for _, r := range m.reports {
		stats[r.Status]++
	}
	return stats, nil
}
