package services

import (
	"context"
	"sync"
	"time"

	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/finance/memory"
)

// fakeAPI wraps the memory backend and injects failures per operation.
type fakeAPI struct {
	*memory.Store

	mu             sync.Mutex
	failCosting    error
	failCategories error
	failUsers      error
	failInvoices   error
	failTrainer    error
	failExpenses   error
	failDashboard  error
	categoryCalls  int
	trainerCalls   int
	block          chan struct{}
}

func newFakeAPI() *fakeAPI {
	store := memory.New(memory.WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	}))
	store.SetCategories(memory.DemoCategories())
	store.AddMarketingUser(finance.MarketingUser{ID: "mkt-1", FullName: "Aisyah"})
	store.OpenSession(context.Background(), finance.CostingSnapshot{
		Session: finance.SessionInfo{
			ID:             "s1",
			StartDate:      "2025-03-03",
			EndDate:        "2025-03-05",
			CoordinatorID:  "c1",
			ParticipantIDs: []string{"p1", "p2", "p3"},
			TrainerAssignments: []finance.TrainerAssignment{
				{TrainerID: "t1", TrainerName: "Mei", Role: "chief_trainer"},
				{TrainerID: "t2", Role: "trainer"},
			},
		},
		Pax: 20,
	})
	return &fakeAPI{Store: store}
}

func (f *fakeAPI) GetCosting(ctx context.Context, id string) (finance.CostingSnapshot, error) {
	if f.failCosting != nil {
		return finance.CostingSnapshot{}, f.failCosting
	}
	return f.Store.GetCosting(ctx, id)
}

func (f *fakeAPI) ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	f.mu.Lock()
	f.categoryCalls++
	f.mu.Unlock()
	if f.failCategories != nil {
		return nil, f.failCategories
	}
	return f.Store.ListExpenseCategories(ctx)
}

func (f *fakeAPI) ListMarketingUsers(ctx context.Context) ([]finance.MarketingUser, error) {
	if f.failUsers != nil {
		return nil, f.failUsers
	}
	return f.Store.ListMarketingUsers(ctx)
}

func (f *fakeAPI) ListInvoices(ctx context.Context, filter finance.InvoiceFilter) ([]finance.Invoice, error) {
	if f.failInvoices != nil {
		return nil, f.failInvoices
	}
	return f.Store.ListInvoices(ctx, filter)
}

func (f *fakeAPI) SaveTrainerFees(ctx context.Context, id string, fees []core.TrainerFeeLine) error {
	f.mu.Lock()
	f.trainerCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.failTrainer != nil {
		return f.failTrainer
	}
	return f.Store.SaveTrainerFees(ctx, id, fees)
}

func (f *fakeAPI) SaveExpenses(ctx context.Context, id string, lines []core.ExpenseLine) error {
	if f.failExpenses != nil {
		return f.failExpenses
	}
	return f.Store.SaveExpenses(ctx, id, lines)
}

func (f *fakeAPI) Dashboard(ctx context.Context) (finance.DashboardSummary, error) {
	if f.failDashboard != nil {
		return finance.DashboardSummary{}, f.failDashboard
	}
	return f.Store.Dashboard(ctx)
}

type fakeJournal struct {
	mu      sync.Mutex
	reports []core.SaveReport
	err     error
}

func (j *fakeJournal) RecordSave(_ context.Context, r core.SaveReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reports = append(j.reports, r)
	return j.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published []core.SaveReport
}

func (p *fakePublisher) PublishCostingSaved(_ context.Context, r core.SaveReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r)
	return nil
}
