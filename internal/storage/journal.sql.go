package storage

import (
	"context"
	"database/sql"
)

const createSaveReport = `
INSERT INTO save_reports (id, session_id, started_at, finished_at, outcome, final_profit, rollup_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateSaveReportParams struct {
	ID          string
	SessionID   string
	StartedAt   string
	FinishedAt  string
	Outcome     string
	FinalProfit string
	RollupJson  string
}

func (q *Queries) CreateSaveReport(ctx context.Context, arg CreateSaveReportParams) error {
	_, err := q.db.ExecContext(ctx, createSaveReport,
		arg.ID,
		arg.SessionID,
		arg.StartedAt,
		arg.FinishedAt,
		arg.Outcome,
		arg.FinalProfit,
		arg.RollupJson,
	)
	return err
}

const createSaveStep = `
INSERT INTO save_steps (save_id, position, step, status, error)
VALUES (?, ?, ?, ?, ?)
`

type CreateSaveStepParams struct {
	SaveID   string
	Position int64
	Step     string
	Status   string
	Error    string
}

func (q *Queries) CreateSaveStep(ctx context.Context, arg CreateSaveStepParams) error {
	_, err := q.db.ExecContext(ctx, createSaveStep,
		arg.SaveID,
		arg.Position,
		arg.Step,
		arg.Status,
		arg.Error,
	)
	return err
}

const saveReportColumns = `id, session_id, started_at, finished_at, outcome, final_profit, rollup_json, exported_at, export_attempts, export_error`

const getSaveReport = `
SELECT ` + saveReportColumns + `
FROM save_reports
WHERE id = ?
`

func (q *Queries) GetSaveReport(ctx context.Context, id string) (SaveReport, error) {
	row := q.db.QueryRowContext(ctx, getSaveReport, id)
	var i SaveReport
	err := scanSaveReport(row, &i)
	return i, err
}

const listSaveReportsBySession = `
SELECT ` + saveReportColumns + `
FROM save_reports
WHERE session_id = ?
ORDER BY started_at DESC
LIMIT ?
`

type ListSaveReportsBySessionParams struct {
	SessionID string
	Limit     int64
}

func (q *Queries) ListSaveReportsBySession(ctx context.Context, arg ListSaveReportsBySessionParams) ([]SaveReport, error) {
	rows, err := q.db.QueryContext(ctx, listSaveReportsBySession, arg.SessionID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectSaveReports(rows)
}

const listUnexportedSaveReports = `
SELECT ` + saveReportColumns + `
FROM save_reports
WHERE exported_at IS NULL AND outcome != 'failed' AND export_attempts < ?
ORDER BY started_at ASC
LIMIT ?
`

type ListUnexportedSaveReportsParams struct {
	MaxAttempts int64
	Limit       int64
}

func (q *Queries) ListUnexportedSaveReports(ctx context.Context, arg ListUnexportedSaveReportsParams) ([]SaveReport, error) {
	rows, err := q.db.QueryContext(ctx, listUnexportedSaveReports, arg.MaxAttempts, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectSaveReports(rows)
}

const listSaveSteps = `
SELECT save_id, position, step, status, error
FROM save_steps
WHERE save_id = ?
ORDER BY position ASC
`

func (q *Queries) ListSaveSteps(ctx context.Context, saveID string) ([]SaveStep, error) {
	rows, err := q.db.QueryContext(ctx, listSaveSteps, saveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SaveStep
	for rows.Next() {
		var i SaveStep
		if err := rows.Scan(&i.SaveID, &i.Position, &i.Step, &i.Status, &i.Error); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markSaveReportExported = `
UPDATE save_reports
SET exported_at = ?, export_error = NULL, export_attempts = export_attempts + 1
WHERE id = ?
`

type MarkSaveReportExportedParams struct {
	ExportedAt string
	ID         string
}

func (q *Queries) MarkSaveReportExported(ctx context.Context, arg MarkSaveReportExportedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSaveReportExported, arg.ExportedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSaveReportExportError = `
UPDATE save_reports
SET export_error = ?, export_attempts = export_attempts + 1
WHERE id = ?
`

type MarkSaveReportExportErrorParams struct {
	ExportError sql.NullString
	ID          string
}

func (q *Queries) MarkSaveReportExportError(ctx context.Context, arg MarkSaveReportExportErrorParams) error {
	_, err := q.db.ExecContext(ctx, markSaveReportExportError, arg.ExportError, arg.ID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSaveReport(row rowScanner, i *SaveReport) error {
	return row.Scan(
		&i.ID,
		&i.SessionID,
		&i.StartedAt,
		&i.FinishedAt,
		&i.Outcome,
		&i.FinalProfit,
		&i.RollupJson,
		&i.ExportedAt,
		&i.ExportAttempts,
		&i.ExportError,
	)
}

func collectSaveReports(rows *sql.Rows) ([]SaveReport, error) {
	defer rows.Close()
	var items []SaveReport
	for rows.Next() {
		var i SaveReport
		if err := scanSaveReport(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
