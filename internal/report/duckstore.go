package report

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ict-report/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// ErrReportNotFound is returned when no stored report has the requested ID.
var ErrReportNotFound = errors.New("report not found")

// StoreConfig tunes the DuckDB connection.
type StoreConfig struct {
	Threads     int
	MemoryLimit string
}

// DefaultStoreConfig returns the settings used when none are configured.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Threads: 4, MemoryLimit: "1GB"}
}

// ListParams filters and pages stored report listings.
type ListParams struct {
	SerialNumber string
	PartNumber   string
	Status       models.UUTStatus
	Limit        int
	Offset       int
}

// DuckStore persists submitted UUT reports in a DuckDB file. It implements
// parser.Submitter so it can receive reports straight from a converter.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger

	// writeMu serializes submissions; DuckDB allows one appender per table at a time.
	writeMu   sync.Mutex
	lastError error

	// Semaphore to limit concurrent queries
	querySem chan struct{}
}

// NewDuckStore opens (or creates) the report database at dbPath. An empty path
// opens an in-memory database.
func NewDuckStore(dbPath string, cfg StoreConfig, logger *zap.Logger) (*DuckStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultStoreConfig().Threads
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = DefaultStoreConfig().MemoryLimit
	}

	logger.Info("opening report database", zap.String("path", dbPath))

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", cfg.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", cfg.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS uuts (
			id               VARCHAR PRIMARY KEY,
			part_number      VARCHAR NOT NULL,
			serial_number    VARCHAR NOT NULL,
			sequence_name    VARCHAR,
			sequence_version VARCHAR,
			operator         VARCHAR,
			start_ms         BIGINT NOT NULL,
			start_offset_s   INTEGER NOT NULL,
			execution_time   DOUBLE NOT NULL,
			status           VARCHAR NOT NULL,
			source_file      VARCHAR,
			step_count       INTEGER NOT NULL,
			submitted_ms     BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			uut_id       VARCHAR NOT NULL,
			group_index  INTEGER NOT NULL,
			group_name   VARCHAR NOT NULL,
			group_status VARCHAR NOT NULL,
			step_index   INTEGER NOT NULL,
			name         VARCHAR NOT NULL,
			step_type    VARCHAR NOT NULL,
			status       VARCHAR NOT NULL,
			pass_fail    BOOLEAN NOT NULL,
			value        DOUBLE NOT NULL,
			comp_op      VARCHAR NOT NULL,
			low_limit    DOUBLE NOT NULL,
			high_limit   DOUBLE NOT NULL,
			unit         VARCHAR NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uuts_serial ON uuts(serial_number)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_uut ON steps(uut_id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &DuckStore{
		db:       db,
		dbPath:   dbPath,
		logger:   logger,
		querySem: make(chan struct{}, 3),
	}, nil
}

// Submit stores a finished report. Failures are logged and kept for LastError;
// the converter handing the report over gets no feedback.
func (ds *DuckStore) Submit(report *models.UUTReport) {
	if err := ds.Save(context.Background(), report); err != nil {
		ds.writeMu.Lock()
		ds.lastError = err
		ds.writeMu.Unlock()
		ds.logger.Error("failed to store report",
			zap.String("id", report.ID),
			zap.Error(err))
	}
}

// LastError returns the last error that occurred during Submit.
func (ds *DuckStore) LastError() error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()
	return ds.lastError
}

// Save writes the report header row and appends its steps.
func (ds *DuckStore) Save(ctx context.Context, report *models.UUTReport) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	conn, err := ds.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	_, offset := report.StartDateTime.Zone()
	summary := report.Summary()
	_, err = conn.ExecContext(ctx, `
		INSERT INTO uuts (id, part_number, serial_number, sequence_name, sequence_version, operator,
			start_ms, start_offset_s, execution_time, status, source_file, step_count, submitted_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.PartNumber, report.SerialNumber, report.SequenceName, report.SequenceVersion,
		report.Operator, report.StartDateTime.UnixMilli(), offset, report.ExecutionTime,
		string(report.Status), report.SourceFile, summary.StepCount, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", report.ID, err)
	}

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "steps")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for gi, group := range report.Root.SequenceCalls {
			for si, step := range group.Steps {
				row := encodeStep(step)
				err := appender.AppendRow(
					report.ID,
					int32(gi),
					group.Name,
					string(group.Status),
					int32(si),
					step.Name,
					string(step.Type),
					string(step.Status),
					row.passFail,
					row.value,
					row.compOp,
					row.low,
					row.high,
					row.unit,
				)
				if err != nil {
					return fmt.Errorf("failed to append step %d/%d: %w", gi, si, err)
				}
			}
		}

		return appender.Flush()
	})
	if err != nil {
		if _, delErr := conn.ExecContext(ctx, "DELETE FROM uuts WHERE id = ?", report.ID); delErr != nil {
			ds.logger.Warn("failed to roll back report header", zap.String("id", report.ID), zap.Error(delErr))
		}
		return fmt.Errorf("appender error: %w", err)
	}

	ds.logger.Debug("report stored",
		zap.String("id", report.ID),
		zap.Int("steps", summary.StepCount))
	return nil
}

type stepRow struct {
	passFail  bool
	value     float64
	compOp    string
	low, high float64
	unit      string
}

func encodeStep(step *models.Step) stepRow {
	var row stepRow
	if step.PassFail != nil {
		row.passFail = *step.PassFail
	}
	if m := step.Numeric; m != nil {
		row.value = float64(m.Value)
		row.compOp = string(m.CompOp)
		row.low = float64(m.LowLimit)
		row.high = float64(m.HighLimit)
		row.unit = m.Unit
	}
	return row
}

func (ds *DuckStore) acquire(ctx context.Context) (func(), error) {
	select {
	case ds.querySem <- struct{}{}:
		return func() { <-ds.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns report summaries matching params, newest first, and the total
// number of matches.
func (ds *DuckStore) List(ctx context.Context, params ListParams) ([]models.UUTSummary, int, error) {
	release, err := ds.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	where, args := buildWhereClause(params)

	countQuery := "SELECT COUNT(*) FROM uuts"
	if where != "" {
		countQuery += " WHERE " + where
	}
	var total int
	if err := ds.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}
	if total == 0 {
		return []models.UUTSummary{}, 0, nil
	}

	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, part_number, serial_number, sequence_name, operator, start_ms,
		execution_time, status, source_file, step_count FROM uuts`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY start_ms DESC, submitted_ms DESC LIMIT ? OFFSET ?"
	args = append(args, limit, params.Offset)

	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list query failed: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.UUTSummary, 0, limit)
	for rows.Next() {
		var s models.UUTSummary
		var startMs int64
		var status string
		var seqName, operator, source sql.NullString
		if err := rows.Scan(&s.ID, &s.PartNumber, &s.SerialNumber, &seqName, &operator, &startMs,
			&s.ExecutionTime, &status, &source, &s.StepCount); err != nil {
			return nil, 0, err
		}
		s.SequenceName = seqName.String
		s.Operator = operator.String
		s.SourceFile = source.String
		s.Status = models.UUTStatus(status)
		s.StartDateTimeUTC = time.UnixMilli(startMs).UTC()
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

func buildWhereClause(params ListParams) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if params.SerialNumber != "" {
		clauses = append(clauses, "serial_number = ?")
		args = append(args, params.SerialNumber)
	}
	if params.PartNumber != "" {
		clauses = append(clauses, "part_number = ?")
		args = append(args, params.PartNumber)
	}
	if params.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(params.Status))
	}

	return strings.Join(clauses, " AND "), args
}

// Get loads a full report tree by ID.
func (ds *DuckStore) Get(ctx context.Context, id string) (*models.UUTReport, error) {
	release, err := ds.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	report := models.NewUUTReport()
	var startMs int64
	var offset int
	var status string
	var seqName, seqVersion, operator, source sql.NullString
	err = ds.db.QueryRowContext(ctx, `
		SELECT id, part_number, serial_number, sequence_name, sequence_version, operator,
			start_ms, start_offset_s, execution_time, status, source_file
		FROM uuts WHERE id = ?`, id).Scan(
		&report.ID, &report.PartNumber, &report.SerialNumber, &seqName, &seqVersion, &operator,
		&startMs, &offset, &report.ExecutionTime, &status, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("report query failed: %w", err)
	}
	report.SequenceName = seqName.String
	report.SequenceVersion = seqVersion.String
	report.Operator = operator.String
	report.SourceFile = source.String
	report.Status = models.UUTStatus(status)
	report.StartDateTimeUTC = time.UnixMilli(startMs).UTC()
	report.StartDateTime = report.StartDateTimeUTC.In(time.FixedZone("", offset))

	rows, err := ds.db.QueryContext(ctx, `
		SELECT group_index, group_name, group_status, name, step_type, status,
			pass_fail, value, comp_op, low_limit, high_limit, unit
		FROM steps WHERE uut_id = ? ORDER BY group_index, step_index`, id)
	if err != nil {
		return nil, fmt.Errorf("steps query failed: %w", err)
	}
	defer rows.Close()

	var group *models.SequenceCall
	lastGroup := -1
	for rows.Next() {
		var gi int
		var groupName, groupStatus, stepType, stepStatus string
		var step models.Step
		var row stepRow
		if err := rows.Scan(&gi, &groupName, &groupStatus, &step.Name, &stepType, &stepStatus,
			&row.passFail, &row.value, &row.compOp, &row.low, &row.high, &row.unit); err != nil {
			return nil, err
		}
		if gi != lastGroup {
			group = report.Root.AddSequenceCall(groupName)
			group.Status = models.StepStatus(groupStatus)
			lastGroup = gi
		}
		step.Type = models.StepType(stepType)
		step.Status = models.StepStatus(stepStatus)
		if step.Type == models.StepTypePassFail {
			passed := row.passFail
			step.PassFail = &passed
		} else {
			step.Numeric = &models.NumericMeasurement{
				Value:     models.Float(row.value),
				CompOp:    models.CompOperator(row.compOp),
				LowLimit:  models.Float(row.low),
				HighLimit: models.Float(row.high),
				Unit:      row.unit,
			}
		}
		group.Steps = append(group.Steps, &step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return report, nil
}

// Stats returns the number of stored reports per status.
func (ds *DuckStore) Stats(ctx context.Context) (map[models.UUTStatus]int, error) {
	release, err := ds.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := ds.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM uuts GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[models.UUTStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[models.UUTStatus(status)] = n
	}
	return stats, rows.Err()
}

// Close closes the database. The database file is kept.
func (ds *DuckStore) Close() error {
	if ds.db != nil {
		return ds.db.Close()
	}
	return nil
}
