package http

import (
	"net/http"

	"encargos/internal/ledger"
	applog "encargos/internal/log"
	"encargos/internal/services"
)

var statsPeriods = []ledger.Period{ledger.PeriodWeek, ledger.PeriodMonth, ledger.PeriodYear}

// statsPanel feeds the stats_panel partial.
type statsPanel struct {
	View      services.StatsView
	Periods   []ledger.Period
	Rate      rateView
	LoadError string
}

type statsPage struct {
	page
	Panel statsPanel
}

// loadStats returns the panel and the status to answer with.
func (s *Server) loadStats(r *http.Request) (statsPanel, int) {
	panel := statsPanel{Periods: statsPeriods, Rate: s.currentRate()}

	period, err := ledger.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		panel.View.Period = ledger.PeriodMonth
		panel.LoadError = "Período desconocido"
		return panel, http.StatusUnprocessableEntity
	}
	panel.View.Period = period

	user := userFrom(r.Context())
	view, err := s.svc.Stats.Compute(r.Context(), user.ID, period)
	if err != nil {
		if services.IsValidation(err) {
			panel.LoadError = err.Error()
			return panel, http.StatusUnprocessableEntity
		}
		s.logLoadError(r, err, applog.ComponentStats)
		panel.LoadError = msgLoadFailed
		return panel, http.StatusInternalServerError
	}
	panel.View = view
	return panel, http.StatusOK
}

func (s *Server) handleStatsPage(w http.ResponseWriter, r *http.Request) {
	panel, status := s.loadStats(r)
	s.render(w, r, status, "stats.html", statsPage{
		page:  s.newPage(r, "Estadísticas", "stats"),
		Panel: panel,
	})
}

func (s *Server) handleStatsPanel(w http.ResponseWriter, r *http.Request) {
	panel, status := s.loadStats(r)
	s.render(w, r, status, "stats_panel", panel)
}
