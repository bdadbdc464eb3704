package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"costing/internal/cache"
	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/log"
	"costing/internal/rollup"
)

var (
	ErrSaveInProgress  = errors.New("a save is already in progress for this session")
	ErrUnknownLine     = errors.New("expense line does not exist")
	ErrUnknownCategory = errors.New("unknown expense category")
)

const (
	unknownTrainerName = "Unknown Trainer"
	defaultTrainerRole = "trainer"
	categoriesCacheKey = "expense_categories"
)

type (
	// CostingBackend is the part of the finance API a costing edit uses.
	CostingBackend interface {
		finance.CostingReader
		finance.CategoryReader
		finance.MarketingUserReader
		finance.InvoiceStore
		finance.CostingWriter
	}

	// Journal records every save attempt.
	Journal interface {
		RecordSave(ctx context.Context, r core.SaveReport) error
	}

	// Publisher announces saves that reached the finance API.
	Publisher interface {
		PublishCostingSaved(ctx context.Context, r core.SaveReport) error
	}

	CostingConfig struct {
		CategoryTTL     time.Duration
		RollupCacheSize int
		RollupCacheTTL  time.Duration
	}

	// CostingView is everything the costing screen needs for one session.
	CostingView struct {
		Snapshot       finance.CostingSnapshot `json:"snapshot"`
		Form           core.CostingForm        `json:"form"`
		Rollup         core.RollupResult       `json:"rollup"`
		Categories     []core.ExpenseCategory  `json:"categories"`
		MarketingUsers []finance.MarketingUser `json:"marketing_users"`
		Invoice        *finance.Invoice        `json:"invoice,omitempty"`
		Warnings       []string                `json:"warnings,omitempty"`
		Saving         bool                    `json:"saving"`
	}
)

// DefaultCostingConfig returns sensible defaults
func DefaultCostingConfig() CostingConfig {
	return CostingConfig{
		CategoryTTL:     5 * time.Minute,
		RollupCacheSize: 256,
		RollupCacheTTL:  10 * time.Minute,
	}
}

// CostingService loads, edits and saves the costing of training sessions.
type CostingService struct {
	api       CostingBackend
	journal   Journal
	publisher Publisher
	logger    *log.Logger
	events    *log.StructuredLogger

	calc       *rollup.Calculator
	categories *cache.LRUCache[[]core.ExpenseCategory]

	mu   sync.Mutex
	busy map[string]struct{}
	now  func() time.Time
}

// NewCostingService creates a costing service. journal and publisher are
// optional.
func NewCostingService(api CostingBackend, journal Journal, publisher Publisher, logger *log.Logger, cfg CostingConfig) *CostingService {
	logger = log.OrDiscard(logger).WithComponent(log.ComponentCosting)
	if cfg.CategoryTTL <= 0 {
		cfg.CategoryTTL = DefaultCostingConfig().CategoryTTL
	}
	if cfg.RollupCacheSize <= 0 {
		cfg.RollupCacheSize = DefaultCostingConfig().RollupCacheSize
	}
	if cfg.RollupCacheTTL <= 0 {
		cfg.RollupCacheTTL = DefaultCostingConfig().RollupCacheTTL
	}

	return &CostingService{
		api:        api,
		journal:    journal,
		publisher:  publisher,
		logger:     logger,
		events:     log.NewStructuredLogger(logger),
		calc:       rollup.NewCalculator(cfg.RollupCacheSize, cfg.RollupCacheTTL),
		categories: cache.NewLRUCache[[]core.ExpenseCategory](1, cfg.CategoryTTL),
		busy:       make(map[string]struct{}),
		now:        time.Now,
	}
}

// Caches returns the caches owned by the service so they can be registered
// for periodic expiry.
func (s *CostingService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.calc.Cache(), s.categories}
}

// Load fetches everything needed to edit a session's costing in parallel.
// Only the costing snapshot is required; the other lists fall back to empty
// and add a warning.
func (s *CostingService) Load(ctx context.Context, sessionID string) (CostingView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return CostingView{}, core.ErrMissingSession
	}

	var (
		view     CostingView
		warnMu   sync.Mutex
		warnings []string
	)
	warn := func(what string, err error) {
		s.logger.WarnContext(ctx, "Optional costing data unavailable",
			log.FieldSessionID, sessionID, log.FieldOperation, log.OpLoad, "resource", what, log.FieldError, err)
		warnMu.Lock()
		warnings = append(warnings, fmt.Sprintf("%s unavailable: %s", what, finance.Detail(err)))
		warnMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.api.GetCosting(gctx, sessionID)
		if err != nil {
			return fmt.Errorf("load costing %s: %w", sessionID, err)
		}
		view.Snapshot = snap
		return nil
	})
	g.Go(func() error {
		cats, err := s.Categories(gctx)
		if err != nil {
			warn("expense categories", err)
			cats = []core.ExpenseCategory{}
		}
		view.Categories = cats
		return nil
	})
	g.Go(func() error {
		users, err := s.api.ListMarketingUsers(gctx)
		if err != nil {
			warn("marketing users", err)
			users = []finance.MarketingUser{}
		}
		view.MarketingUsers = users
		return nil
	})
	g.Go(func() error {
		invoices, err := s.api.ListInvoices(gctx, finance.InvoiceFilter{SessionID: sessionID})
		if err != nil {
			warn("invoice", err)
			return nil
		}
		if inv, ok := finance.FindSessionInvoice(invoices, sessionID); ok {
			view.Invoice = &inv
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.events.LogError(ctx, "Failed to load costing", err, log.ComponentCosting, log.OpLoad,
			log.NewFields().WithSession(sessionID))
		return CostingView{}, err
	}

	view.Form = BuildForm(view.Snapshot)
	view.Form.SessionID = sessionID
	view.Rollup = s.calc.Compute(view.Form)
	view.Warnings = warnings
	view.Saving = s.Saving(sessionID)
	return view, nil
}

// Categories returns the expense categories, cached for the configured TTL.
func (s *CostingService) Categories(ctx context.Context) ([]core.ExpenseCategory, error) {
	if cats, ok := s.categories.Get(categoriesCacheKey); ok {
		return cats, nil
	}
	cats, err := s.api.ListExpenseCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expense categories: %w", err)
	}
	s.categories.Set(categoriesCacheKey, cats)
	return cats, nil
}

// Rollup computes the summary for the current form.
func (s *CostingService) Rollup(form core.CostingForm) core.RollupResult {
	return s.calc.Compute(form)
}

// ApplyCategory points expense line index at a category, re-deriving its
// description, type and estimate.
func (s *CostingService) ApplyCategory(ctx context.Context, form core.CostingForm, index int, categoryID string) (core.CostingForm, error) {
	if index < 0 || index >= len(form.Expenses) {
		return form, ErrUnknownLine
	}
	cats, err := s.Categories(ctx)
	if err != nil {
		return form, err
	}
	cat, ok := rollup.FindCategory(cats, categoryID)
	if !ok {
		return form, fmt.Errorf("%w: %q", ErrUnknownCategory, categoryID)
	}

	lines := append([]core.ExpenseLine(nil), form.Expenses...)
	lines[index] = rollup.ApplyCategory(lines[index], cat,
		rollup.InvoiceTotal(form.Invoice, form.Pax), rollup.ResolveHeadcount(form.Headcount))
	form.Expenses = lines
	return form, nil
}

// AutoAddExpenses appends a line for every rate-based category the form does
// not use yet and reports how many were added.
func (s *CostingService) AutoAddExpenses(ctx context.Context, form core.CostingForm) (core.CostingForm, int, error) {
	cats, err := s.Categories(ctx)
	if err != nil {
		return form, 0, err
	}
	res := rollup.AutoAddExpenses(form.Expenses, cats,
		rollup.InvoiceTotal(form.Invoice, form.Pax), rollup.ResolveHeadcount(form.Headcount))
	form.Expenses = res.Lines
	return form, res.Added, nil
}

// Save submits the form to the finance API as five independent steps. A
// failed step is reported and the remaining steps still run. The returned
// error is only for problems that stop the save before anything is sent:
// an invalid form or a save already running for the session.
func (s *CostingService) Save(ctx context.Context, form core.CostingForm) (core.SaveReport, error) {
	if err := form.Validate(); err != nil {
		return core.SaveReport{}, err
	}
	form.SessionID = strings.TrimSpace(form.SessionID)

	if !s.acquire(form.SessionID) {
		return core.SaveReport{}, ErrSaveInProgress
	}
	defer s.release(form.SessionID)

	report := core.SaveReport{
		ID:        uuid.NewString(),
		SessionID: form.SessionID,
		StartedAt: s.now().UTC(),
		Rollup:    s.calc.Compute(form),
	}

	steps := []struct {
		step core.SaveStep
		run  func(context.Context, core.CostingForm) (bool, error)
	}{
		{core.StepInvoice, s.saveInvoice},
		{core.StepTrainerFees, s.saveTrainerFees},
		{core.StepCoordinator, s.saveCoordinatorFee},
		{core.StepExpenses, s.saveExpenses},
		{core.StepMarketing, s.saveMarketing},
	}
	for _, st := range steps {
		attempted, err := st.run(ctx, form)
		result := core.StepResult{Step: st.step, Status: core.StepOK}
		switch {
		case err != nil:
			result.Status = core.StepFailed
			result.Error = finance.Detail(err)
		case !attempted:
			result.Status = core.StepSkipped
		}
		if attempted {
			s.events.LogSaveStep(ctx, form.SessionID, string(st.step), err)
		}
		report.Steps = append(report.Steps, result)
	}
	report.FinishedAt = s.now().UTC()

	s.logger.InfoContext(ctx, "Costing saved",
		log.FieldSessionID, form.SessionID,
		log.FieldSaveID, report.ID,
		log.FieldOutcome, report.Outcome(),
		log.FieldFinalProfit, report.Rollup.FinalProfit.StringFixed(2))

	if s.journal != nil {
		if err := s.journal.RecordSave(ctx, report); err != nil {
			s.events.LogError(ctx, "Failed to journal save", err, log.ComponentStorage, log.OpJournal,
				log.NewFields().WithSession(form.SessionID))
		}
	}
	if s.publisher != nil && report.AnySucceeded() {
		if err := s.publisher.PublishCostingSaved(ctx, report); err != nil {
			s.events.LogError(ctx, "Failed to publish save", err, log.ComponentAMQP, log.OpPublish,
				log.NewFields().WithSession(form.SessionID))
		}
	}
	return report, nil
}

// Saving reports whether a save is running for the session.
func (s *CostingService) Saving(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.busy[sessionID]
	return ok
}

func (s *CostingService) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[sessionID]; ok {
		return false
	}
	s.busy[sessionID] = struct{}{}
	return true
}

func (s *CostingService) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, sessionID)
}

// saveInvoice updates the session's invoice or creates one when it has none.
func (s *CostingService) saveInvoice(ctx context.Context, form core.CostingForm) (bool, error) {
	payload := finance.NewInvoicePayload(form.SessionID, form.Invoice, form.Pax)

	invoices, err := s.api.ListInvoices(ctx, finance.InvoiceFilter{SessionID: form.SessionID})
	if err != nil {
		return true, fmt.Errorf("find session invoice: %w", err)
	}
	if inv, ok := finance.FindSessionInvoice(invoices, form.SessionID); ok {
		if _, err := s.api.UpdateInvoice(ctx, inv.ID, payload); err != nil {
			return true, fmt.Errorf("update invoice %s: %w", inv.InvoiceNumber, err)
		}
		return true, nil
	}
	if _, err := s.api.CreateInvoice(ctx, payload); err != nil {
		return true, fmt.Errorf("create invoice: %w", err)
	}
	return true, nil
}

func (s *CostingService) saveTrainerFees(ctx context.Context, form core.CostingForm) (bool, error) {
	var fees []core.TrainerFeeLine
	for _, f := range form.TrainerFees {
		if f.FeeAmount.IsPositive() {
			fees = append(fees, f)
		}
	}
	if len(fees) == 0 {
		return false, nil
	}
	return true, s.api.SaveTrainerFees(ctx, form.SessionID, fees)
}

func (s *CostingService) saveCoordinatorFee(ctx context.Context, form core.CostingForm) (bool, error) {
	if !form.CoordinatorAssigned() || form.Coordinator.NumDays <= 0 {
		return false, nil
	}
	return true, s.api.SaveCoordinatorFee(ctx, form.SessionID, finance.CoordinatorFeeRequest{
		CoordinatorID: strings.TrimSpace(form.CoordinatorID),
		NumDays:       form.Coordinator.NumDays,
		DailyRate:     form.Coordinator.DailyRate,
	})
}

func (s *CostingService) saveExpenses(ctx context.Context, form core.CostingForm) (bool, error) {
	var lines []core.ExpenseLine
	for _, e := range form.Expenses {
		if e.Category != "" && e.HasAmount() {
			lines = append(lines, e)
		}
	}
	if len(lines) == 0 {
		return false, nil
	}
	return true, s.api.SaveExpenses(ctx, form.SessionID, lines)
}

func (s *CostingService) saveMarketing(ctx context.Context, form core.CostingForm) (bool, error) {
	if !form.Marketing.Active() {
		return false, nil
	}
	m := form.Marketing
	m.MarketingUserID = strings.TrimSpace(m.MarketingUserID)
	return true, s.api.SaveMarketing(ctx, form.SessionID, m)
}

// BuildForm turns a persisted costing into an editable form.
//
// Trainer lines follow the session's trainer assignments, picking up any
// saved fee by trainer id; without assignments the saved fee lines are used.
// A session with a coordinator but no saved fee gets the default duration
// from its dates. A saved invoice total pre-fills lumpsum pricing with the
// tax rate implied by the withheld tax.
func BuildForm(snap finance.CostingSnapshot) core.CostingForm {
	form := core.CostingForm{
		SessionID:     snap.Session.ID,
		CoordinatorID: snap.Session.CoordinatorID,
		Pax:           snap.Pax,
		Headcount:     resolveHeadcountInputs(snap),
		Invoice:       core.InvoiceTerms{PricingType: core.PricingLumpsum},
		Coordinator:   core.CoordinatorFee{NumDays: 1, DailyRate: core.DefaultDailyRate},
		Marketing:     core.MarketingCommission{CommissionType: core.CommissionPercentage},
	}

	form.TrainerFees = buildTrainerLines(snap)

	switch {
	case snap.CoordinatorFee != nil:
		form.Coordinator = *snap.CoordinatorFee
	case form.CoordinatorAssigned():
		form.Coordinator = core.DefaultCoordinatorFee(
			core.ParseSessionDate(snap.Session.StartDate),
			core.ParseSessionDate(snap.Session.EndDate))
	}

	form.Expenses = append([]core.ExpenseLine(nil), snap.Expenses...)

	if snap.Marketing != nil {
		m := *snap.Marketing
		form.Marketing = core.MarketingCommission{
			MarketingUserID: m.MarketingUserID,
			CommissionType:  m.CommissionType,
			CommissionRate:  m.CommissionRate,
			FixedAmount:     m.FixedAmount,
		}
	}

	if snap.InvoiceTotal.IsPositive() {
		form.Invoice.LumpsumAmount = snap.InvoiceTotal
		if snap.LessTax.IsPositive() {
			rate := snap.LessTax.Div(snap.InvoiceTotal.Decimal).Mul(core.Hundred).Round(1)
			form.Invoice.TaxRate = core.NewAmount(rate)
		}
	}
	return form
}

func buildTrainerLines(snap finance.CostingSnapshot) []core.TrainerFeeLine {
	if len(snap.Session.TrainerAssignments) > 0 {
		existing := make(map[string]core.TrainerFeeLine, len(snap.TrainerFees))
		for _, f := range snap.TrainerFees {
			existing[f.TrainerID] = f
		}
		lines := make([]core.TrainerFeeLine, 0, len(snap.Session.TrainerAssignments))
		for _, ta := range snap.Session.TrainerAssignments {
			f := existing[ta.TrainerID]
			lines = append(lines, core.TrainerFeeLine{
				TrainerID:   ta.TrainerID,
				TrainerName: firstNonEmpty(f.TrainerName, ta.TrainerName, unknownTrainerName),
				Role:        ta.Role,
				FeeAmount:   f.FeeAmount,
				Remark:      f.Remark,
			})
		}
		return lines
	}

	lines := make([]core.TrainerFeeLine, 0, len(snap.TrainerFees))
	for _, f := range snap.TrainerFees {
		f.TrainerName = firstNonEmpty(f.TrainerName, unknownTrainerName)
		f.Role = firstNonEmpty(f.Role, defaultTrainerRole)
		lines = append(lines, f)
	}
	return lines
}

// resolveHeadcountInputs fills the assignment lists from the session when the
// snapshot carries no precomputed counts for them.
func resolveHeadcountInputs(snap finance.CostingSnapshot) core.HeadcountInputs {
	in := snap.Headcount
	if in.ParticipantCount == nil && len(in.ParticipantIDs) == 0 {
		in.ParticipantIDs = append([]string(nil), snap.Session.ParticipantIDs...)
	}
	if in.TrainerCount == nil && len(in.TrainerIDs) == 0 {
		for _, ta := range snap.Session.TrainerAssignments {
			in.TrainerIDs = append(in.TrainerIDs, ta.TrainerID)
		}
	}
	if in.CoordinatorCount == nil && in.CoordinatorID == "" {
		in.CoordinatorID = snap.Session.CoordinatorID
	}
	return in
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
