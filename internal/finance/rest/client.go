// Package rest is the HTTP client for the external finance API.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"costing/internal/core"
	"costing/internal/finance"
)

const maxErrorBody = 64 << 10

// Client talks to the finance API under <baseURL>/finance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ finance.API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token forwarded on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client. timeout applies to each request.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid finance api url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) GetCosting(ctx context.Context, sessionID string) (finance.CostingSnapshot, error) {
	var snap finance.CostingSnapshot
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID)+"/costing", nil, nil, &snap)
	return snap, err
}

func (c *Client) ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	var out []core.ExpenseCategory
	err := c.do(ctx, http.MethodGet, "/expense-categories", nil, nil, &out)
	return out, err
}

func (c *Client) ListMarketingUsers(ctx context.Context) ([]finance.MarketingUser, error) {
	var out []finance.MarketingUser
	err := c.do(ctx, http.MethodGet, "/marketing-users", nil, nil, &out)
	return out, err
}

func (c *Client) ListInvoices(ctx context.Context, filter finance.InvoiceFilter) ([]finance.Invoice, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.SessionID != "" {
		q.Set("session_id", filter.SessionID)
	}
	var out []finance.Invoice
	err := c.do(ctx, http.MethodGet, "/invoices", q, nil, &out)
	return out, err
}

func (c *Client) GetInvoice(ctx context.Context, id string) (finance.Invoice, error) {
	var inv finance.Invoice
	err := c.do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(id), nil, nil, &inv)
	return inv, err
}

func (c *Client) CreateInvoice(ctx context.Context, p finance.InvoicePayload) (finance.Invoice, error) {
	var inv finance.Invoice
	err := c.do(ctx, http.MethodPost, "/invoices", nil, p, &inv)
	return inv, err
}

func (c *Client) UpdateInvoice(ctx context.Context, id string, p finance.InvoicePayload) (finance.Invoice, error) {
	var inv finance.Invoice
	err := c.do(ctx, http.MethodPut, "/invoices/"+url.PathEscape(id), nil, p, &inv)
	return inv, err
}

func (c *Client) SaveTrainerFees(ctx context.Context, sessionID string, fees []core.TrainerFeeLine) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/trainer-fees", nil, fees, nil)
}

func (c *Client) SaveCoordinatorFee(ctx context.Context, sessionID string, fee finance.CoordinatorFeeRequest) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/coordinator-fee", nil, fee, nil)
}

func (c *Client) SaveExpenses(ctx context.Context, sessionID string, lines []core.ExpenseLine) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/expenses", nil, lines, nil)
}

func (c *Client) SaveMarketing(ctx context.Context, sessionID string, m core.MarketingCommission) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/marketing", nil, m, nil)
}

func (c *Client) ApproveInvoice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/invoices/"+url.PathEscape(id)+"/approve", nil, nil, nil)
}

func (c *Client) IssueInvoice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/invoices/"+url.PathEscape(id)+"/issue", nil, nil, nil)
}

// CancelInvoice passes the reason as a query parameter, as the API expects.
func (c *Client) CancelInvoice(ctx context.Context, id, reason string) error {
	q := url.Values{"reason": {reason}}
	return c.do(ctx, http.MethodPost, "/invoices/"+url.PathEscape(id)+"/cancel", q, nil, nil)
}

func (c *Client) RecordPayment(ctx context.Context, p core.PaymentRequest) (finance.Payment, error) {
	var out finance.Payment
	err := c.do(ctx, http.MethodPost, "/payments", nil, p, &out)
	return out, err
}

func (c *Client) ListPayments(ctx context.Context, invoiceID string) ([]finance.Payment, error) {
	q := url.Values{}
	if invoiceID != "" {
		q.Set("invoice_id", invoiceID)
	}
	var out []finance.Payment
	err := c.do(ctx, http.MethodGet, "/payments", q, nil, &out)
	return out, err
}

func (c *Client) CreateCreditNote(ctx context.Context, cn core.CreditNoteRequest) (finance.CreditNote, error) {
	var out finance.CreditNote
	err := c.do(ctx, http.MethodPost, "/credit-notes", nil, cn, &out)
	return out, err
}

func (c *Client) ListCreditNotes(ctx context.Context, sessionID string) ([]finance.CreditNote, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	var out []finance.CreditNote
	err := c.do(ctx, http.MethodGet, "/credit-notes", q, nil, &out)
	return out, err
}

func (c *Client) ListAudit(ctx context.Context, filter finance.AuditFilter) ([]finance.AuditEntry, error) {
	q := url.Values{}
	if filter.EntityType != "" {
		q.Set("entity_type", filter.EntityType)
	}
	if filter.EntityID != "" {
		q.Set("entity_id", filter.EntityID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = finance.DefaultAuditLimit
	}
	q.Set("limit", strconv.Itoa(limit))

	var out []finance.AuditEntry
	err := c.do(ctx, http.MethodGet, "/audit-log", q, nil, &out)
	return out, err
}

func (c *Client) Dashboard(ctx context.Context) (finance.DashboardSummary, error) {
	var out finance.DashboardSummary
	err := c.do(ctx, http.MethodGet, "/dashboard", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + "/finance" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if actor := finance.ActorFrom(ctx); actor != finance.SystemActor {
		req.Header.Set(finance.ActorHeader, actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError reads the API's {"detail": ...} body. Detail may be a string
// or a list of validation problems; anything else falls back to the raw body.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &finance.APIError{Status: resp.StatusCode}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		apiErr.Detail = detailText(body.Detail)
	}
	if apiErr.Detail == "" {
		apiErr.Detail = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(raw)
}
