package core

import "time"

// Save steps, in the order they are attempted.
const (
	StepInvoice     SaveStep = "invoice"
	StepTrainerFees SaveStep = "trainer_fees"
	StepCoordinator SaveStep = "coordinator_fee"
	StepExpenses    SaveStep = "expenses"
	StepMarketing   SaveStep = "marketing"
)

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

type (
	SaveStep   string
	StepStatus string

	StepResult struct {
		Step   SaveStep   `json:"step"`
		Status StepStatus `json:"status"`
		Error  string     `json:"error,omitempty"`
	}

	// SaveReport is the outcome of one save attempt across the independent
	// finance resources of a session.
	SaveReport struct {
		ID         string       `json:"id"`
		SessionID  string       `json:"session_id"`
		StartedAt  time.Time    `json:"started_at"`
		FinishedAt time.Time    `json:"finished_at"`
		Steps      []StepResult `json:"steps"`
		Rollup     RollupResult `json:"rollup"`
		ExportedAt *time.Time   `json:"exported_at,omitempty"`
	}
)

// SaveSteps returns every step in submission order.
func SaveSteps() []SaveStep {
	return []SaveStep{StepInvoice, StepTrainerFees, StepCoordinator, StepExpenses, StepMarketing}
}

// Failed returns the steps that were attempted and failed.
func (r SaveReport) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			out = append(out, s)
		}
	}
	return out
}

// Succeeded reports whether no attempted step failed.
func (r SaveReport) Succeeded() bool {
	return len(r.Failed()) == 0
}

// AnySucceeded reports whether at least one step reached the finance API.
func (r SaveReport) AnySucceeded() bool {
	for _, s := range r.Steps {
		if s.Status == StepOK {
			return true
		}
	}
	return false
}

// Outcome summarises the report as "ok", "partial" or "failed".
func (r SaveReport) Outcome() string {
	switch {
	case r.Succeeded():
		return "ok"
	case r.AnySucceeded():
		return "partial"
	default:
		return "failed"
	}
}
