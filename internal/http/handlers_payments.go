package http

import (
	"net/http"

	applog "encargos/internal/log"
	"encargos/internal/services"
)

// paymentsPanel feeds the payments partial.
type paymentsPanel struct {
	Summary services.PaymentSummary
	Rate    rateView
	Now     string
}

func (s *Server) renderPayments(w http.ResponseWriter, r *http.Request, orderID string, resp *HTMXResponseBuilder) {
	user := userFrom(r.Context())
	summary, err := s.svc.Payments.List(r.Context(), user.ID, orderID)
	if err != nil {
		s.readError(w, r, err, applog.ComponentPayments)
		return
	}

	html, err := s.execute(r, "payments", paymentsPanel{
		Summary: summary,
		Rate:    s.currentRate(),
		Now:     s.now().Format("2006-01-02T15:04"),
	})
	if err != nil {
		InternalServerError(msgLoadFailed).Write(w)
		return
	}
	if resp == nil {
		resp = NewHTMXResponse()
	}
	resp.BodyHTML(html).Write(w)
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	s.renderPayments(w, r, r.PathValue("id"), nil)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	in, err := parsePaymentInput(NewRequestBodyParser(r))
	if err != nil {
		UnprocessableEntityError(err.Error()).TriggerErrorNotification(err.Error()).Write(w)
		return
	}

	user := userFrom(r.Context())
	orderID := r.PathValue("id")
	res, err := s.svc.Payments.Record(r.Context(), user.ID, orderID, in)
	if err != nil {
		s.writeError(w, r, err, applog.ComponentPayments, applog.OpRecord)
		return
	}
	s.events.LogPaymentRecorded(r.Context(), string(user.ID), res.Payment.ID, orderID, res.Payment.Amount.String(), res.Closed)

	msg := "Pago registrado"
	if res.Closed {
		msg = "Pago registrado, encargo saldado"
	}
	s.renderPayments(w, r, orderID, NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerPaymentRecorded(orderID, res.Closed).
		TriggerSuccessNotification(msg))
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	p, err := s.svc.Payments.Delete(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, applog.ComponentPayments, applog.OpDelete)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentPayments).InfoContext(r.Context(), "Payment deleted",
		applog.NewFields().WithOwner(string(user.ID)).WithPayment(p.ID, p.OrderID, p.Amount.String()).WithOperation(applog.OpDelete).ToSlice()...)

	s.renderPayments(w, r, p.OrderID, NewHTMXResponse().
		TriggerPaymentDeleted(p.OrderID).
		TriggerSuccessNotification("Pago eliminado"))
}
