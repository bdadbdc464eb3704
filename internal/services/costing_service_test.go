package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/finance/memory"
)

func newCostingService(api *fakeAPI, j *fakeJournal, p *fakePublisher) *CostingService {
	var journal Journal
	if j != nil {
		journal = j
	}
	var publisher Publisher
	if p != nil {
		publisher = p
	}
	return NewCostingService(api, journal, publisher, nil, DefaultCostingConfig())
}

func scenarioForm() core.CostingForm {
	return core.CostingForm{
		SessionID:     "s1",
		CoordinatorID: "c1",
		Pax:           20,
		Invoice: core.InvoiceTerms{
			PricingType:   core.PricingLumpsum,
			LumpsumAmount: core.AmountOf(8000),
			TaxRate:       core.AmountOf(6),
		},
		TrainerFees: []core.TrainerFeeLine{
			{TrainerID: "t1", FeeAmount: core.AmountOf(1200)},
			{TrainerID: "t2", FeeAmount: core.AmountOf(800)},
			{TrainerID: "t3"},
		},
		Coordinator: core.CoordinatorFee{NumDays: 3, DailyRate: core.AmountOf(50)},
		Expenses: []core.ExpenseLine{
			{Category: "hrdcorp-levy", ExpenseType: core.ExpensePercentage, EstimatedAmount: core.AmountOf(320)},
			{Category: "", Description: "to be confirmed"},
			{Category: "venue"},
		},
		Marketing: core.MarketingCommission{
			MarketingUserID: "mkt-1",
			CommissionType:  core.CommissionPercentage,
			CommissionRate:  core.AmountOf(10),
		},
	}
}

func stepStatus(r core.SaveReport) map[core.SaveStep]core.StepStatus {
	out := make(map[core.SaveStep]core.StepStatus, len(r.Steps))
	for _, s := range r.Steps {
		out[s.Step] = s.Status
	}
	return out
}

func TestLoad(t *testing.T) {
	api := newFakeAPI()
	svc := newCostingService(api, nil, nil)

	view, err := svc.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(view.Categories) != len(memory.DemoCategories()) {
		t.Errorf("categories = %d", len(view.Categories))
	}
	if view.Invoice == nil || view.Invoice.Status != core.StatusAutoDraft {
		t.Errorf("invoice = %+v", view.Invoice)
	}
	if len(view.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", view.Warnings)
	}

	f := view.Form
	if len(f.TrainerFees) != 2 || f.TrainerFees[1].TrainerName != "Unknown Trainer" || f.TrainerFees[0].Role != "chief_trainer" {
		t.Errorf("trainer lines = %+v", f.TrainerFees)
	}
	if f.Coordinator.NumDays != 3 || !f.Coordinator.DailyRate.Equal(decimal.NewFromInt(50)) {
		t.Errorf("default coordinator fee = %+v", f.Coordinator)
	}
	if got := len(f.Headcount.ParticipantIDs) + len(f.Headcount.TrainerIDs); got != 5 || f.Headcount.CoordinatorID != "c1" {
		t.Errorf("headcount inputs = %+v", f.Headcount)
	}
}

func TestLoadDegradesOptionalLists(t *testing.T) {
	api := newFakeAPI()
	api.failCategories = errors.New("categories down")
	api.failUsers = &finance.APIError{Status: 403, Detail: "Access denied"}
	api.failInvoices = errors.New("invoices down")
	svc := newCostingService(api, nil, nil)

	view, err := svc.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if view.Categories == nil || len(view.Categories) != 0 || len(view.MarketingUsers) != 0 || view.Invoice != nil {
		t.Errorf("optional lists should be empty: %+v", view)
	}
	if len(view.Warnings) != 3 {
		t.Fatalf("warnings = %v", view.Warnings)
	}
	joined := strings.Join(view.Warnings, "|")
	if !strings.Contains(joined, "Access denied") {
		t.Errorf("warning should carry server detail: %v", view.Warnings)
	}
}

func TestLoadRequiresCosting(t *testing.T) {
	api := newFakeAPI()
	api.failCosting = finance.NotFound("Session")
	svc := newCostingService(api, nil, nil)

	if _, err := svc.Load(context.Background(), "s1"); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Load(context.Background(), " "); !errors.Is(err, core.ErrMissingSession) {
		t.Fatalf("expected missing session, got %v", err)
	}
}

func TestCategoriesAreCached(t *testing.T) {
	api := newFakeAPI()
	svc := newCostingService(api, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.Categories(context.Background()); err != nil {
			t.Fatalf("Categories: %v", err)
		}
	}
	if api.categoryCalls != 1 {
		t.Fatalf("category calls = %d, want 1", api.categoryCalls)
	}
}

func TestBuildForm(t *testing.T) {
	snap := finance.CostingSnapshot{
		Session:      finance.SessionInfo{ID: "s9"},
		Pax:          10,
		InvoiceTotal: core.AmountOf(8000),
		LessTax:      core.LenientAmount("533.33"),
		TrainerFees: []core.TrainerFeeLine{
			{TrainerID: "t1", FeeAmount: core.AmountOf(500)},
		},
		CoordinatorFee: &core.CoordinatorFee{NumDays: 2, DailyRate: core.AmountOf(80)},
		Marketing: &core.MarketingCommission{
			MarketingUserID: "mkt-1", CommissionType: core.CommissionFixed, FixedAmount: core.AmountOf(300),
		},
	}

	f := BuildForm(snap)
	if f.Invoice.PricingType != core.PricingLumpsum || f.Invoice.LumpsumAmount.String() != "8000" {
		t.Errorf("invoice terms = %+v", f.Invoice)
	}
	if f.Invoice.TaxRate.String() != "6.7" {
		t.Errorf("tax rate = %s, want 6.7", f.Invoice.TaxRate)
	}
	if len(f.TrainerFees) != 1 || f.TrainerFees[0].TrainerName != "Unknown Trainer" || f.TrainerFees[0].Role != "trainer" {
		t.Errorf("trainer lines = %+v", f.TrainerFees)
	}
	if f.Coordinator.NumDays != 2 {
		t.Errorf("saved coordinator fee should win: %+v", f.Coordinator)
	}
	if f.Marketing.CreateNew || f.Marketing.FixedAmount.String() != "300" {
		t.Errorf("marketing = %+v", f.Marketing)
	}

	empty := BuildForm(finance.CostingSnapshot{})
	if empty.Coordinator.NumDays != 1 || empty.Invoice.TaxRate.IsSet() {
		t.Errorf("empty form = %+v", empty)
	}
}

func TestSaveScenario(t *testing.T) {
	api := newFakeAPI()
	journal := &fakeJournal{}
	pub := &fakePublisher{}
	svc := newCostingService(api, journal, pub)
	ctx := context.Background()

	report, err := svc.Save(ctx, scenarioForm())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if report.Outcome() != "ok" || len(report.Steps) != 5 {
		t.Fatalf("report = %+v", report)
	}
	for step, status := range stepStatus(report) {
		if status != core.StepOK {
			t.Errorf("step %s = %s", step, status)
		}
	}
	if !report.Rollup.FinalProfit.Equal(decimal.NewFromInt(4545)) {
		t.Errorf("final profit = %s", report.Rollup.FinalProfit)
	}

	snap, _ := api.Store.GetCosting(ctx, "s1")
	if len(snap.TrainerFees) != 2 {
		t.Errorf("blank trainer fee should be dropped, got %d lines", len(snap.TrainerFees))
	}
	if len(snap.Expenses) != 1 || snap.Expenses[0].Category != "hrdcorp-levy" {
		t.Errorf("expenses = %+v", snap.Expenses)
	}
	if !snap.InvoiceTotal.Equal(decimal.NewFromInt(8000)) || !snap.LessTax.Equal(decimal.NewFromInt(480)) {
		t.Errorf("invoice totals = %s / %s", snap.InvoiceTotal, snap.LessTax)
	}

	if len(journal.reports) != 1 || len(pub.published) != 1 {
		t.Errorf("journal %d published %d", len(journal.reports), len(pub.published))
	}
}

func TestSavePartialFailure(t *testing.T) {
	api := newFakeAPI()
	api.failTrainer = &finance.APIError{Status: 400, Detail: "Trainer not assigned to session"}
	api.failExpenses = errors.New("connection reset")
	journal := &fakeJournal{}
	pub := &fakePublisher{}
	svc := newCostingService(api, journal, pub)

	report, err := svc.Save(context.Background(), scenarioForm())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := stepStatus(report)
	want := map[core.SaveStep]core.StepStatus{
		core.StepInvoice:     core.StepOK,
		core.StepTrainerFees: core.StepFailed,
		core.StepCoordinator: core.StepOK,
		core.StepExpenses:    core.StepFailed,
		core.StepMarketing:   core.StepOK,
	}
	for step, status := range want {
		if got[step] != status {
			t.Errorf("step %s = %s, want %s", step, got[step], status)
		}
	}
	if report.Steps[1].Error != "Trainer not assigned to session" {
		t.Errorf("step error = %q", report.Steps[1].Error)
	}
	if report.Outcome() != "partial" {
		t.Errorf("outcome = %s", report.Outcome())
	}
	if len(pub.published) != 1 {
		t.Errorf("partial saves are still published")
	}
}

func TestSaveSkipsInactiveSteps(t *testing.T) {
	api := newFakeAPI()
	pub := &fakePublisher{}
	svc := newCostingService(api, nil, pub)

	form := scenarioForm()
	form.CoordinatorID = ""
	form.TrainerFees = []core.TrainerFeeLine{{TrainerID: "t1"}}
	form.Expenses = nil
	form.Marketing = core.MarketingCommission{CommissionType: core.CommissionPercentage, CommissionRate: core.AmountOf(10)}

	report, err := svc.Save(context.Background(), form)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := stepStatus(report)
	if got[core.StepInvoice] != core.StepOK {
		t.Errorf("invoice step = %s", got[core.StepInvoice])
	}
	for _, step := range []core.SaveStep{core.StepTrainerFees, core.StepCoordinator, core.StepExpenses, core.StepMarketing} {
		if got[step] != core.StepSkipped {
			t.Errorf("step %s = %s, want skipped", step, got[step])
		}
	}
	if !report.Rollup.MarketingAmount.IsZero() || !report.Rollup.CoordinatorTotal.IsZero() {
		t.Errorf("rollup = %+v", report.Rollup)
	}
	if api.trainerCalls != 0 {
		t.Errorf("trainer fees should not be sent")
	}
}

func TestSaveCreatesMissingInvoice(t *testing.T) {
	api := newFakeAPI()
	api.Store.AddSession(finance.CostingSnapshot{Session: finance.SessionInfo{ID: "s2"}, Pax: 12})
	svc := newCostingService(api, nil, nil)

	form := core.CostingForm{
		SessionID: "s2",
		Pax:       12,
		Invoice:   core.InvoiceTerms{PricingType: core.PricingPerPax, PerPaxRate: core.AmountOf(400)},
	}
	report, err := svc.Save(context.Background(), form)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if report.Steps[0].Status != core.StepOK {
		t.Fatalf("invoice step = %+v", report.Steps[0])
	}

	invoices, _ := api.Store.ListInvoices(context.Background(), finance.InvoiceFilter{SessionID: "s2"})
	if len(invoices) != 1 || !invoices[0].TotalAmount.Equal(decimal.NewFromInt(4800)) {
		t.Fatalf("invoices = %+v", invoices)
	}
	if invoices[0].LineItems[0].Quantity != 12 {
		t.Errorf("line item = %+v", invoices[0].LineItems[0])
	}
}

func TestSaveRejectsInvalidFormBeforeSending(t *testing.T) {
	api := newFakeAPI()
	journal := &fakeJournal{}
	svc := newCostingService(api, journal, nil)

	form := scenarioForm()
	form.Invoice.PricingType = "hourly"
	if _, err := svc.Save(context.Background(), form); !errors.Is(err, core.ErrInvalidForm) {
		t.Fatalf("expected invalid form, got %v", err)
	}
	if api.trainerCalls != 0 || len(journal.reports) != 0 {
		t.Fatalf("nothing should be sent or journalled")
	}
}

func TestSaveBusyFlag(t *testing.T) {
	api := newFakeAPI()
	api.block = make(chan struct{})
	svc := newCostingService(api, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Save(context.Background(), scenarioForm())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !svc.Saving("s1") {
		if time.Now().After(deadline) {
			t.Fatalf("first save never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.Save(context.Background(), scenarioForm()); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	if view, err := svc.Load(context.Background(), "s1"); err != nil || !view.Saving {
		t.Fatalf("load during save: saving=%v err=%v", view.Saving, err)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("first save: %v", err)
	}
	if svc.Saving("s1") {
		t.Fatalf("busy flag not released")
	}
	if view, err := svc.Load(context.Background(), "s1"); err != nil || view.Saving {
		t.Fatalf("load after save: saving=%v err=%v", view.Saving, err)
	}
}

func TestJournalFailureDoesNotFailSave(t *testing.T) {
	api := newFakeAPI()
	journal := &fakeJournal{err: errors.New("disk full")}
	svc := newCostingService(api, journal, nil)

	report, err := svc.Save(context.Background(), scenarioForm())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("report = %+v", report)
	}
}

func TestApplyCategoryAndAutoAdd(t *testing.T) {
	api := newFakeAPI()
	svc := newCostingService(api, nil, nil)
	ctx := context.Background()

	form := scenarioForm()
	form.Headcount = core.HeadcountInputs{ParticipantCount: intPtr(20), TrainerCount: intPtr(1), CoordinatorID: "c1"}
	form.Expenses = []core.ExpenseLine{{Description: "typed", EstimatedAmount: core.AmountOf(1)}}

	updated, err := svc.ApplyCategory(ctx, form, 0, "food-beverage")
	if err != nil {
		t.Fatalf("ApplyCategory: %v", err)
	}
	if updated.Expenses[0].Description != "F&B" || updated.Expenses[0].EstimatedAmount.String() != "550" {
		t.Errorf("line = %+v", updated.Expenses[0])
	}
	if form.Expenses[0].Description != "typed" {
		t.Errorf("input form modified")
	}

	if _, err := svc.ApplyCategory(ctx, form, 3, "food-beverage"); !errors.Is(err, ErrUnknownLine) {
		t.Errorf("expected ErrUnknownLine, got %v", err)
	}
	if _, err := svc.ApplyCategory(ctx, form, 0, "nope"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}

	withAll, added, err := svc.AutoAddExpenses(ctx, updated)
	if err != nil {
		t.Fatalf("AutoAddExpenses: %v", err)
	}
	// HRDCorp and training materials; F&B is already present.
	if added != 2 || len(withAll.Expenses) != 3 {
		t.Fatalf("added %d, lines %d", added, len(withAll.Expenses))
	}
	if withAll.Expenses[1].EstimatedAmount.String() != "320" || withAll.Expenses[2].EstimatedAmount.String() != "330" {
		t.Errorf("auto lines = %+v", withAll.Expenses[1:])
	}
}

func intPtr(n int) *int { return &n }
