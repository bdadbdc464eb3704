package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"costing/internal/amqp"
	"costing/internal/core"
	"costing/internal/log"
	"costing/internal/sheets"
	"costing/internal/storage"
)

// Journal is the part of the save journal the export worker needs.
type Journal interface {
	GetSave(ctx context.Context, id string) (core.SaveReport, error)
	PendingExports(ctx context.Context, limit, maxAttempts int) ([]core.SaveReport, error)
	MarkExported(ctx context.Context, id string, at time.Time) error
	MarkExportError(ctx context.Context, id string, cause error) error
}

var _ Journal = (*storage.SQLiteRepository)(nil)

// ExportConfig holds configuration for the export worker
type ExportConfig struct {
	// PollInterval is how often to sweep unexported saves (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of saves exported per sweep (default: 10)
	BatchSize int

	// MaxAttempts stops retrying a save after this many failed exports (default: 5)
	MaxAttempts int
}

func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxAttempts:  5,
	}
}

// ExportWorker copies journalled rollups to the spreadsheet. It reacts to
// costing.saved messages and also sweeps the journal periodically so saves
// published while the broker was down still get exported.
type ExportWorker struct {
	journal  Journal
	exporter sheets.RollupExporter
	config   ExportConfig
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportWorker(journal Journal, exporter sheets.RollupExporter, config ExportConfig, logger *log.Logger) *ExportWorker {
	def := DefaultExportConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	return &ExportWorker{
		journal:  journal,
		exporter: exporter,
		config:   config,
		logger:   log.OrDiscard(logger).WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// HandleCostingSaved exports the save named by msg. Unknown saves are
// acknowledged with a warning since redelivery cannot fix them.
func (w *ExportWorker) HandleCostingSaved(ctx context.Context, msg *amqp.CostingSavedMessage) error {
	w.logger.InfoContext(ctx, "Processing costing saved message",
		log.FieldSaveID, msg.SaveID,
		log.FieldSessionID, msg.SessionID,
		log.FieldOutcome, msg.Outcome)

	report, err := w.journal.GetSave(ctx, msg.SaveID)
	if errors.Is(err, storage.ErrSaveNotFound) {
		w.logger.WarnContext(ctx, "Save not found in journal, dropping message", log.FieldSaveID, msg.SaveID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get save from journal: %w", err)
	}

	if report.ExportedAt != nil {
		w.logger.DebugContext(ctx, "Save already exported", log.FieldSaveID, report.ID)
		return nil
	}

	return w.export(ctx, report)
}

// ProcessPending exports one batch of unexported saves and returns how many
// made it. Failures are recorded on the journal and do not stop the batch.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.journal.PendingExports(ctx, w.config.BatchSize, w.config.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.DebugContext(ctx, "Processing export batch", log.FieldCount, len(pending))

	exported := 0
	for _, report := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if err := w.export(ctx, report); err != nil {
			continue
		}
		exported++
	}

	if exported > 0 {
		w.logger.InfoContext(ctx, "Export batch completed",
			log.FieldCount, exported,
			"failed", len(pending)-exported)
	}
	return exported, nil
}

// Start begins the periodic sweep. Returns an error if already running.
func (w *ExportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("export worker is already running")
	}
	w.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	w.logger.InfoContext(ctx, "Export worker started",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop gracefully stops the sweep and waits for the current batch. After a
// timeout the worker keeps finishing its batch; Stop may be called again to
// wait for it.
func (w *ExportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.stopCh = nil
	w.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Export worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Export worker stop timed out")
		return ctx.Err()
	}
}

func (w *ExportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ExportWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExportWorker) sweep(ctx context.Context) {
	if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Export sweep failed", log.FieldError, err)
	}
}

func (w *ExportWorker) export(ctx context.Context, report core.SaveReport) error {
	ref, err := w.exporter.ExportRollup(ctx, report)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to export rollup",
			log.FieldSaveID, report.ID,
			log.FieldOperation, log.OpExport,
			log.FieldError, err)
		if markErr := w.journal.MarkExportError(ctx, report.ID, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to record export error",
				log.FieldSaveID, report.ID, log.FieldError, markErr)
		}
		return fmt.Errorf("export rollup %s: %w", report.ID, err)
	}

	// The row is in the sheet; a journal failure here only means a later
	// sweep re-exports it, which the exporter treats as a no-op.
	if err := w.journal.MarkExported(ctx, report.ID, w.now()); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark save as exported",
			log.FieldSaveID, report.ID, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Rollup exported",
		log.FieldSaveID, report.ID,
		log.FieldSessionID, report.SessionID,
		"row", ref)
	return nil
}
