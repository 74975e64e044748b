package report

import (
	"sync"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/parser"
)

// Collector keeps submitted reports in memory, in submission order.
type Collector struct {
	mu      sync.Mutex
	reports []*models.UUTReport
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Submit(report *models.UUTReport) {
	c.mu.Lock()
	c.reports = append(c.reports, report)
	c.mu.Unlock()
}

// Reports returns a snapshot of the collected reports.
func (c *Collector) Reports() []*models.UUTReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.UUTReport, len(c.reports))
	copy(out, c.reports)
	return out
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

// Multi fans one report out to several submitters. Nil submitters are skipped.
type Multi []parser.Submitter

func (m Multi) Submit(report *models.UUTReport) {
	for _, s := range m {
		if s != nil {
			s.Submit(report)
		}
	}
}
