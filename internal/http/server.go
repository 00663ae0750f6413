// Package http serves the orders, payments, statistics and notes pages.
package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	applog "encargos/internal/log"
	"encargos/internal/middleware/ratelimit"
	"encargos/internal/middleware/security"
	"encargos/internal/middleware/trace"
	"encargos/internal/services"
	appweb "encargos/web"
)

// RateSource supplies the current USD to bolívar rate.
type RateSource interface {
	Rate() (decimal.Decimal, bool)
	UpdatedAt() time.Time
}

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the application services behind the handlers.
type Services struct {
	Orders   *services.OrderService
	Payments *services.PaymentService
	Notes    *services.NoteService
	Stats    *services.StatsService
	Auth     *services.AuthService
}

// Options configures NewServer. Rates and Store are optional.
type Options struct {
	Addr     string
	Logger   *applog.Logger
	Services Services
	Rates    RateSource
	Store    Pinger
	// SecureCookies forces the Secure flag on the session cookie.
	SecureCookies bool
}

// Server is the application HTTP server.
type Server struct {
	http.Server

	svc       Services
	rates     RateSource
	store     Pinger
	logger    *applog.Logger
	events    *applog.StructuredLogger
	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	secure    bool
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires routes and middleware.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector()
	s := &Server{
		svc:       opts.Services,
		rates:     opts.Rates,
		store:     opts.Store,
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
		templates: t,
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:  detector,
		tracer:    trace.NewMiddleware(logger, detector.ExtractClientIP),
		secure:    opts.SecureCookies,
		now:       time.Now,
	}

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		s.limiter.Stop()
		return nil, err
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /logout", s.handleLogout)

	auth := s.requireSession
	mux.Handle("GET /{$}", auth(s.handleOrdersPage))
	mux.Handle("GET /ui/orders", auth(s.handleOrderList))
	mux.Handle("POST /orders", auth(s.handleCreateOrder))
	mux.Handle("GET /orders/{id}/edit", auth(s.handleEditOrder))
	mux.Handle("POST /orders/{id}", auth(s.handleUpdateOrder))
	mux.Handle("DELETE /orders/{id}", auth(s.handleDeleteOrder))

	mux.Handle("GET /orders/{id}/payments", auth(s.handlePayments))
	mux.Handle("POST /orders/{id}/payments", auth(s.handleRecordPayment))
	mux.Handle("DELETE /payments/{id}", auth(s.handleDeletePayment))

	mux.Handle("GET /stats", auth(s.handleStatsPage))
	mux.Handle("GET /ui/stats", auth(s.handleStatsPanel))

	mux.Handle("GET /notes", auth(s.handleNotesPage))
	mux.Handle("POST /notes", auth(s.handleCreateNote))
	mux.Handle("POST /notes/{id}", auth(s.handleUpdateNote))
	mux.Handle("DELETE /notes/{id}", auth(s.handleDeleteNote))

	mux.Handle("GET /api/rate", auth(s.handleRate))
	return nil
}

// middleware wraps h, outermost first: tracing, scan detection, security
// headers, then the write rate limit.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	return s.tracer.Middleware(h)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, msgRateLimited).
		TriggerErrorNotification(msgRateLimited).
		Write(w)
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// execute runs a template into a string so a failure never leaves a
// half-written response. Failures are logged.
func (s *Server) execute(r *http.Request, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Template execution failed", err, applog.ComponentHTTP, applog.OpRender,
			applog.NewFields().WithCustom("template", name))
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	html, err := s.execute(r, name, data)
	if err != nil {
		InternalServerError("Algo salió mal, intenta de nuevo").Write(w)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(html).Write(w)
}
