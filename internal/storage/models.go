package storage

import (
	"database/sql"
)

type SaveReport struct {
	ID             string
	SessionID      string
	StartedAt      string
	FinishedAt     string
	Outcome        string
	FinalProfit    string
	RollupJson     string
	ExportedAt     sql.NullString
	ExportAttempts int64
	ExportError    sql.NullString
}

type SaveStep struct {
	SaveID   string
	Position int64
	Step     string
	Status   string
	Error    string
}
