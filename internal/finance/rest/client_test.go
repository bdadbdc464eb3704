package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"costing/internal/core"
	"costing/internal/finance"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, time.Second, WithToken("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := New(raw, time.Second); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}

func TestGetCosting(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/finance/session/s-1/costing" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		io.WriteString(w, `{
			"session": {"id": "s-1", "coordinator_id": "c-1", "start_date": "2025-03-03", "end_date": "2025-03-05"},
			"pax": 20,
			"invoice_total": 8000,
			"less_tax": "480",
			"trainer_fees": [{"trainer_id": "t1", "fee_amount": 1200}],
			"coordinator_fee": {"num_days": 3, "daily_rate": 50},
			"expenses": [{"category": "hrdc", "estimated_amount": "", "actual_amount": 320}],
			"marketing": null
		}`)
	})

	snap, err := c.GetCosting(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("GetCosting: %v", err)
	}
	if snap.Pax != 20 || snap.Session.CoordinatorID != "c-1" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.InvoiceTotal.String() != "8000" || snap.LessTax.String() != "480" {
		t.Errorf("amounts = %s / %s", snap.InvoiceTotal, snap.LessTax)
	}
	if snap.CoordinatorFee == nil || snap.CoordinatorFee.NumDays != 3 {
		t.Errorf("coordinator fee = %+v", snap.CoordinatorFee)
	}
	if snap.Marketing != nil {
		t.Errorf("marketing should be nil")
	}
	if snap.Expenses[0].EstimatedAmount.IsSet() || snap.Expenses[0].ActualAmount.String() != "320" {
		t.Errorf("expense amounts = %+v", snap.Expenses[0])
	}
}

func TestCancelInvoiceSendsReason(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/finance/invoices/inv-1/cancel" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("reason"); got != "client withdrew" {
			t.Errorf("reason = %q", got)
		}
		io.WriteString(w, `{"message": "Invoice cancelled successfully"}`)
	})

	if err := c.CancelInvoice(context.Background(), "inv-1", "client withdrew"); err != nil {
		t.Fatalf("CancelInvoice: %v", err)
	}
}

func TestActorHeader(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"no actor", context.Background(), ""},
		{"named actor", finance.WithActor(context.Background(), "finance-amy"), "finance-amy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get(finance.ActorHeader); got != tt.want {
					t.Errorf("actor header = %q, want %q", got, tt.want)
				}
				io.WriteString(w, `{"message": "Invoice approved successfully"}`)
			})
			if err := c.ApproveInvoice(tt.ctx, "inv-1"); err != nil {
				t.Fatalf("ApproveInvoice: %v", err)
			}
		})
	}
}

func TestSaveTrainerFeesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var got []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 || got[0]["trainer_id"] != "t1" || got[0]["fee_amount"] != float64(1200) {
			t.Errorf("body = %v", got)
		}
		w.WriteHeader(http.StatusOK)
	})

	fees := []core.TrainerFeeLine{{TrainerID: "t1", FeeAmount: core.AmountOf(1200)}}
	if err := c.SaveTrainerFees(context.Background(), "s-1", fees); err != nil {
		t.Fatalf("SaveTrainerFees: %v", err)
	}
}

func TestErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		notFound   bool
	}{
		{"string detail", 400, `{"detail": "Only approved invoices can be issued"}`, "Only approved invoices can be issued", false},
		{"validation list", 422, `{"detail": [{"msg": "field required"}, {"msg": "value is not a valid float"}]}`, "field required; value is not a valid float", false},
		{"not found", 404, `{"detail": "Invoice not found"}`, "Invoice not found", true},
		{"plain body", 502, `upstream down`, "upstream down", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			err := c.IssueInvoice(context.Background(), "inv-1")
			var apiErr *finance.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Detail != tt.wantDetail {
				t.Errorf("got %d %q", apiErr.Status, apiErr.Detail)
			}
			if errors.Is(err, finance.ErrNotFound) != tt.notFound {
				t.Errorf("ErrNotFound match = %v", !tt.notFound)
			}
		})
	}
}

func TestListAuditDefaultsLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "100" || q.Get("entity_type") != "invoice" {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `[{"id": "a1", "entity_type": "invoice", "action": "status_changed", "timestamp": "2025-03-01T10:00:00Z"}]`)
	})

	entries, err := c.ListAudit(context.Background(), finance.AuditFilter{EntityType: "invoice"})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "status_changed" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Dashboard(ctx); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
}
