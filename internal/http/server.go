package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/log"
	"costing/internal/middleware/ratelimit"
	"costing/internal/middleware/security"
	"costing/internal/middleware/trace"
	"costing/internal/services"
)

// SaveJournal is the read side of the save journal the API exposes.
type SaveJournal interface {
	GetSave(ctx context.Context, id string) (core.SaveReport, error)
	ListSaves(ctx context.Context, sessionID string, limit int) ([]core.SaveReport, error)
}

// Config holds the server settings that do not come from its dependencies.
type Config struct {
	Addr               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// Server is the costing and finance console JSON API.
type Server struct {
	http.Server

	costing *services.CostingService
	console *services.ConsoleService
	journal SaveJournal
	logger  *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. journal may be nil, in which case the journal routes are not
// mounted.
func NewServer(cfg Config, costing *services.CostingService, console *services.ConsoleService, journal SaveJournal, logger *log.Logger) *Server {
	logger = log.OrDiscard(logger).WithComponent(log.ComponentHTTP)

	detector := security.NewDetector(logger)
	s := &Server{
		costing:  costing,
		console:  console,
		journal:  journal,
		logger:   logger,
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.limiter.Middleware(detector.ExtractClientIP, s.handleRateLimited, http.MethodPost))
	api.Use(actorMiddleware)

	api.HandleFunc("/sessions/{sessionID}/costing", s.handleLoadCosting).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionID}/costing", s.handleSaveCosting).Methods(http.MethodPost)
	api.HandleFunc("/costing/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/costing/rollup", s.handleRollup).Methods(http.MethodPost)
	api.HandleFunc("/costing/expenses/auto-add", s.handleAutoAddExpenses).Methods(http.MethodPost)
	api.HandleFunc("/costing/expenses/{index}/category", s.handleApplyCategory).Methods(http.MethodPost)

	if journal != nil {
		api.HandleFunc("/sessions/{sessionID}/saves", s.handleListSaves).Methods(http.MethodGet)
		api.HandleFunc("/saves/{saveID}", s.handleGetSave).Methods(http.MethodGet)
	}

	// Finance routes stay on api: a nested PathPrefix subrouter turns a
	// method mismatch on an earlier route into a 404.
	api.HandleFunc("/finance/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/finance/invoices/{invoiceID}", s.handleInvoice).Methods(http.MethodGet)
	api.HandleFunc("/finance/invoices/{invoiceID}/payments", s.handleListPayments).Methods(http.MethodGet)
	api.HandleFunc("/finance/invoices/{invoiceID}/payments", s.handleRecordPayment).Methods(http.MethodPost)
	api.HandleFunc("/finance/invoices/{invoiceID}/{action}", s.handleInvoiceAction).Methods(http.MethodPost)
	api.HandleFunc("/finance/sessions/{sessionID}/credit-notes", s.handleListCreditNotes).Methods(http.MethodGet)
	api.HandleFunc("/finance/credit-notes", s.handleCreateCreditNote).Methods(http.MethodPost)
	api.HandleFunc("/finance/audit", s.handleAudit).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	var handler http.Handler = r
	handler = log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(handler)
	handler = log.Middleware(logger)(handler)
	// rs/cors treats an empty origin list as "*", so cross-origin access
	// stays off unless origins are configured.
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", trace.RequestIDHeader, finance.ActorHeader},
			ExposedHeaders: []string{trace.RequestIDHeader},
			MaxAge:         600,
		}).Handler(handler)
	}
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)

		tm := s.tracer.GetMetrics()
		dm := s.detector.GetMetrics()
		rm := s.limiter.GetMetrics()
		s.logger.Info("HTTP server stopped",
			"total_requests", tm.TotalRequests,
			"server_errors", tm.ServerErrors,
			"suspicious_requests", dm.SuspiciousRequests,
			"blocked_requests", dm.BlockedRequests,
			"rate_limited", rm.TotalHits)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// writeError logs failures the client cannot fix and writes the mapped
// error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusForError(err)
	fields := log.NewFields().WithOperation(op).WithError(err)
	fields[log.FieldStatusCode] = status
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	ErrorFromErr(err).Write(w)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
