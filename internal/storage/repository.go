package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"costing/internal/core"
	"costing/internal/log"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrSaveNotFound = errors.New("save report not found")

// SQLiteRepository is the local journal of costing save attempts.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  log.OrDiscard(logger).WithComponent(log.ComponentStorage),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordSave journals a save attempt and its step outcomes in one
// transaction. It implements services.Journal.
func (r *SQLiteRepository) RecordSave(ctx context.Context, report core.SaveReport) error {
	rollup, err := json.Marshal(report.Rollup)
	if err != nil {
		return fmt.Errorf("encode rollup: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	err = q.CreateSaveReport(ctx, CreateSaveReportParams{
		ID:          report.ID,
		SessionID:   report.SessionID,
		StartedAt:   formatTime(report.StartedAt),
		FinishedAt:  formatTime(report.FinishedAt),
		Outcome:     report.Outcome(),
		FinalProfit: report.Rollup.FinalProfit.String(),
		RollupJson:  string(rollup),
	})
	if err != nil {
		return fmt.Errorf("create save report: %w", err)
	}

	for i, step := range report.Steps {
		err := q.CreateSaveStep(ctx, CreateSaveStepParams{
			SaveID:   report.ID,
			Position: int64(i),
			Step:     string(step.Step),
			Status:   string(step.Status),
			Error:    step.Error,
		})
		if err != nil {
			return fmt.Errorf("create save step %s: %w", step.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save report: %w", err)
	}

	r.logger.InfoContext(ctx, "Save journalled",
		log.FieldSaveID, report.ID,
		log.FieldSessionID, report.SessionID,
		log.FieldOutcome, report.Outcome())
	return nil
}

// GetSave returns one journalled save with its steps.
func (r *SQLiteRepository) GetSave(ctx context.Context, id string) (core.SaveReport, error) {
	row, err := r.queries.GetSaveReport(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SaveReport{}, fmt.Errorf("%w: %s", ErrSaveNotFound, id)
	}
	if err != nil {
		return core.SaveReport{}, fmt.Errorf("get save report: %w", err)
	}
	return r.toReport(ctx, row)
}

// ListSaves returns the most recent saves of a session, newest first.
func (r *SQLiteRepository) ListSaves(ctx context.Context, sessionID string, limit int) ([]core.SaveReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.queries.ListSaveReportsBySession(ctx, ListSaveReportsBySessionParams{
		SessionID: sessionID,
		Limit:     int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list save reports: %w", err)
	}
	return r.toReports(ctx, rows)
}

// PendingExports returns saves that reached the finance API but were not
// exported yet, oldest first. Saves that already failed maxAttempts exports
// are left out; maxAttempts <= 0 means no cap.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit, maxAttempts int) ([]core.SaveReport, error) {
	if limit <= 0 {
		limit = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = math.MaxInt32
	}
	rows, err := r.queries.ListUnexportedSaveReports(ctx, ListUnexportedSaveReportsParams{
		MaxAttempts: int64(maxAttempts),
		Limit:       int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list unexported save reports: %w", err)
	}
	return r.toReports(ctx, rows)
}

// MarkExported records a successful export.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string, at time.Time) error {
	n, err := r.queries.MarkSaveReportExported(ctx, MarkSaveReportExportedParams{
		ExportedAt: formatTime(at),
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("mark save exported: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSaveNotFound, id)
	}

	r.logger.InfoContext(ctx, "Save marked as exported", log.FieldSaveID, id)
	return nil
}

// MarkExportError records a failed export attempt; the save stays pending.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string, cause error) error {
	msg := sql.NullString{}
	if cause != nil {
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	if err := r.queries.MarkSaveReportExportError(ctx, MarkSaveReportExportErrorParams{
		ExportError: msg,
		ID:          id,
	}); err != nil {
		return fmt.Errorf("mark save export error: %w", err)
	}

	r.logger.WarnContext(ctx, "Save marked with export error", log.FieldSaveID, id, log.FieldError, cause)
	return nil
}

func (r *SQLiteRepository) toReports(ctx context.Context, rows []SaveReport) ([]core.SaveReport, error) {
	out := make([]core.SaveReport, 0, len(rows))
	for _, row := range rows {
		report, err := r.toReport(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, nil
}

func (r *SQLiteRepository) toReport(ctx context.Context, row SaveReport) (core.SaveReport, error) {
	report := core.SaveReport{
		ID:         row.ID,
		SessionID:  row.SessionID,
		StartedAt:  parseTime(row.StartedAt),
		FinishedAt: parseTime(row.FinishedAt),
	}
	if err := json.Unmarshal([]byte(row.RollupJson), &report.Rollup); err != nil {
		return core.SaveReport{}, fmt.Errorf("decode rollup of save %s: %w", row.ID, err)
	}
	if row.ExportedAt.Valid {
		at := parseTime(row.ExportedAt.String)
		report.ExportedAt = &at
	}

	steps, err := r.queries.ListSaveSteps(ctx, row.ID)
	if err != nil {
		return core.SaveReport{}, fmt.Errorf("list save steps: %w", err)
	}
	report.Steps = make([]core.StepResult, 0, len(steps))
	for _, s := range steps {
		report.Steps = append(report.Steps, core.StepResult{
			Step:   core.SaveStep(s.Step),
			Status: core.StepStatus(s.Status),
			Error:  s.Error,
		})
	}
	return report, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
