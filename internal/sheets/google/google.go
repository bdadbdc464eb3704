package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"costing/internal/core"
	"costing/internal/log"
	ports "costing/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Costing"

type Config struct {
	SpreadsheetID string
	// Base name without year (e.g. "Costing"); the client prefixes the year.
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	baseName      string
	logger        *log.Logger
	now           func() time.Time

	// Save id -> row number of indexedSheet, refreshed from column A when
	// stale or when an export targets another sheet.
	mu                 sync.Mutex
	indexedSheet       string
	cachedIDs          map[string]int
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var _ ports.RollupExporter = (*Client)(nil)

func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an existing Sheets service. Each save goes to the
// sheet named after the year it was made in, e.g. "2025 Costing".
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *Client {
	base := strings.TrimSpace(sheetName)
	if base == "" {
		base = defaultSheetName
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		baseName:           base,
		logger:             log.OrDiscard(logger).WithComponent(log.ComponentSheets),
		now:                time.Now,
		cacheValidDuration: 30 * time.Second,
	}
}

// sheetFor names the sheet of a save from the time it finished, so that
// re-exports after New Year still find the row written before it.
func (c *Client) sheetFor(r core.SaveReport) string {
	at := r.FinishedAt
	if at.IsZero() {
		at = r.StartedAt
	}
	if at.IsZero() {
		at = c.now()
	}
	return yearPrefixedName(c.baseName, at.Year())
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportRollup appends the save's rollup row. A save already present in
// column A is not appended again; its existing row is returned. The header
// row is written with the first export into an empty sheet.
func (c *Client) ExportRollup(ctx context.Context, r core.SaveReport) (string, error) {
	if c.svc == nil {
		return "", ports.ErrNotConfigured
	}
	if strings.TrimSpace(r.ID) == "" {
		return "", errors.New("export rollup: save has no id")
	}

	sheet := c.sheetFor(r)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshIndex(ctx, sheet); err != nil {
		return "", err
	}
	if row, ok := c.cachedIDs[r.ID]; ok {
		c.logger.DebugContext(ctx, "Rollup already exported", log.FieldSaveID, r.ID, "row", row)
		return rowRef(sheet, row), nil
	}

	values := [][]any{ports.RollupRow(r)}
	if c.cachedRowCount == 0 {
		values = append([][]any{ports.Header}, values...)
	}

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		c.cacheExpiresAt = time.Time{}
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	c.cachedRowCount += len(values)
	c.cachedIDs[r.ID] = c.cachedRowCount

	ref := rowRef(sheet, c.cachedRowCount)
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Rollup exported", log.FieldSaveID, r.ID, "range", ref)
	return ref, nil
}

// refreshIndex reloads the save id column of sheet when the cached copy
// expired or belongs to another sheet. Callers hold c.mu.
func (c *Client) refreshIndex(ctx context.Context, sheet string) error {
	if c.cachedIDs != nil && c.indexedSheet == sheet && c.now().Before(c.cacheExpiresAt) {
		return nil
	}
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		c.cachedIDs = nil
		return fmt.Errorf("read %s: %w", rng, err)
	}
	c.indexedSheet = sheet
	c.cachedIDs = parseSaveIDs(resp.Values)
	c.cachedRowCount = len(resp.Values)
	c.cacheExpiresAt = c.now().Add(c.cacheValidDuration)
	return nil
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:N%d", sheet, row, row)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
