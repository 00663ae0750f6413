package http

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"encargos/internal/core"
	applog "encargos/internal/log"
	"encargos/internal/services"
	"encargos/internal/store"
)

// User-facing notices.
const (
	msgSaveFailed  = "No se pudo guardar, intenta de nuevo"
	msgLoadFailed  = "No se pudieron cargar los datos"
	msgNotFound    = "Registro no encontrado"
	msgRateLimited = "Demasiadas solicitudes, intenta de nuevo en un minuto"
)

// rateView is the exchange rate as seen by one render.
type rateView struct {
	Value     decimal.Decimal
	Known     bool
	UpdatedAt time.Time
}

// Bs converts m to bolívares, or returns "" while the rate is unknown.
func (rv rateView) Bs(m core.Money) string {
	if !rv.Known {
		return ""
	}
	return core.FormatBs(m.Convert(rv.Value))
}

// Label renders the rate itself, e.g. "Bs. 36,50".
func (rv rateView) Label() string {
	return core.FormatBs(core.NewMoney(rv.Value))
}

func (s *Server) currentRate() rateView {
	if s.rates == nil {
		return rateView{}
	}
	v, ok := s.rates.Rate()
	return rateView{Value: v, Known: ok, UpdatedAt: s.rates.UpdatedAt()}
}

var templateFuncs = template.FuncMap{
	"usd":      core.FormatUSD,
	"date":     func(d core.Date) string { return d.Format("02/01/2006") },
	"iso":      func(d core.Date) string { return d.String() },
	"when":     func(t time.Time) string { return t.Local().Format("02/01/2006 15:04") },
	"pct":      func(d decimal.Decimal) string { return d.StringFixed(1) + "%" },
	"negative": func(m core.Money) bool { return m.IsNegative() },
	"positive": func(m core.Money) bool { return m.IsPositive() },
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// writeError maps a failed write onto a response: validation problems are
// 422 with their message, missing or foreign records 404, anything else a
// generic 500 notice with the cause logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, component, op string) {
	switch {
	case services.IsValidation(err):
		msg := err.Error()
		UnprocessableEntityError(msg).TriggerErrorNotification(msg).Write(w)
	case isNotFound(err):
		NotFoundError(msgNotFound).TriggerErrorNotification(msgNotFound).Write(w)
	default:
		s.events.LogError(r.Context(), "Write failed", err, component, op,
			applog.NewFields().WithOwner(string(userFrom(r.Context()).ID)).WithErrorType(applog.ErrorTypeDatabase))
		InternalServerError(msgSaveFailed).TriggerErrorNotification(msgSaveFailed).Write(w)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// logLoadError records a failed read. The caller renders the "could not
// load" state.
func (s *Server) logLoadError(r *http.Request, err error, component string) {
	s.events.LogError(r.Context(), "Read failed", err, component, applog.OpRead,
		applog.NewFields().WithOwner(string(userFrom(r.Context()).ID)).WithErrorType(applog.ErrorTypeDatabase))
}
