package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// handleHealth reports liveness along with the middleware counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	traced := s.tracer.GetMetrics()
	limited := s.limiter.GetMetrics()
	NewHTMXResponse().JSON(map[string]any{
		"status": "ok",
		"metrics": map[string]int64{
			"requests":      traced.TotalRequests,
			"server_errors": traced.ServerErrors,
			"rate_limited":  limited.Rejected,
			"clients":       limited.ClientCount,
			"suspicious":    s.detector.GetMetrics().SuspiciousRequests,
		},
	}).Write(w)
}

// handleReady reports 503 while the record store is unreachable. An
// unknown exchange rate does not make the service unready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok", "rate": "unknown"}
	status := http.StatusOK

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			checks["store"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if s.currentRate().Known {
		checks["rate"] = "known"
	}

	body := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	NewHTMXResponse().Status(status).JSON(body).Write(w)
}

type rateResponse struct {
	Rate      *decimal.Decimal `json:"rate"`
	Known     bool             `json:"known"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}

// handleRate returns the current rate, with a null rate while unknown.
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rv := s.currentRate()
	resp := rateResponse{Known: rv.Known}
	if rv.Known {
		resp.Rate = &rv.Value
	}
	if !rv.UpdatedAt.IsZero() {
		resp.UpdatedAt = &rv.UpdatedAt
	}
	NewHTMXResponse().JSON(resp).Write(w)
}
