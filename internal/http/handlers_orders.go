package http

import (
	"net/http"

	"encargos/internal/core"
	"encargos/internal/ledger"
	applog "encargos/internal/log"
	"encargos/internal/services"
)

// page carries what the layout needs on every full page.
type page struct {
	Title  string
	Active string
	User   core.User
	Rate   rateView
}

func (s *Server) newPage(r *http.Request, title, active string) page {
	return page{Title: title, Active: active, User: userFrom(r.Context()), Rate: s.currentRate()}
}

// orderList feeds the order_list partial.
type orderList struct {
	View      services.OrderListView
	Rate      rateView
	LoadError string
}

type ordersPage struct {
	page
	List  orderList
	Today string
}

// orderForm feeds the order_form partial used for editing.
type orderForm struct {
	Entry    ledger.Entry
	Statuses []core.OrderStatus
}

var orderStatuses = []core.OrderStatus{core.StatusPending, core.StatusPaid}

func (s *Server) loadOrderList(r *http.Request) (orderList, bool) {
	user := userFrom(r.Context())
	view, err := s.svc.Orders.List(r.Context(), user.ID, parseOrderQuery(r.URL.Query()))
	list := orderList{View: view, Rate: s.currentRate()}
	if err != nil {
		s.logLoadError(r, err, applog.ComponentOrders)
		list.View.Query = parseOrderQuery(r.URL.Query())
		list.LoadError = msgLoadFailed
		return list, false
	}
	return list, true
}

func (s *Server) handleOrdersPage(w http.ResponseWriter, r *http.Request) {
	list, ok := s.loadOrderList(r)
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	s.render(w, r, status, "orders.html", ordersPage{
		page:  s.newPage(r, "Encargos", "orders"),
		List:  list,
		Today: core.DateOf(s.now()).String(),
	})
}

func (s *Server) handleOrderList(w http.ResponseWriter, r *http.Request) {
	list, ok := s.loadOrderList(r)
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	s.render(w, r, status, "order_list", list)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	in, err := parseOrderInput(p)
	if err != nil {
		UnprocessableEntityError(err.Error()).TriggerErrorNotification(err.Error()).Write(w)
		return
	}

	user := userFrom(r.Context())
	order, err := s.svc.Orders.Create(r.Context(), user.ID, in)
	if err != nil {
		s.writeError(w, r, err, applog.ComponentOrders, applog.OpCreate)
		return
	}
	s.events.LogOrderSaved(r.Context(), applog.OpCreate, string(user.ID), order.ID, string(order.Status))

	resp := NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerOrderSaved(order.ID).
		TriggerFormReset().
		TriggerSuccessNotification("Encargo guardado")
	if p.IsJSON() {
		resp.JSON(orderJSON(order))
	}
	resp.Write(w)
}

func (s *Server) handleEditOrder(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	entry, err := s.svc.Orders.Get(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.readError(w, r, err, applog.ComponentOrders)
		return
	}
	s.render(w, r, http.StatusOK, "order_form", orderForm{Entry: entry, Statuses: orderStatuses})
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	in, err := parseOrderInput(p)
	if err != nil {
		UnprocessableEntityError(err.Error()).TriggerErrorNotification(err.Error()).Write(w)
		return
	}

	user := userFrom(r.Context())
	order, err := s.svc.Orders.Update(r.Context(), user.ID, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err, applog.ComponentOrders, applog.OpUpdate)
		return
	}
	s.events.LogOrderSaved(r.Context(), applog.OpUpdate, string(user.ID), order.ID, string(order.Status))

	resp := NewHTMXResponse().
		TriggerOrderSaved(order.ID).
		TriggerSuccessNotification("Encargo actualizado")
	if p.IsJSON() {
		resp.JSON(orderJSON(order))
	}
	resp.Write(w)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id := r.PathValue("id")
	if err := s.svc.Orders.Delete(r.Context(), user.ID, id); err != nil {
		s.writeError(w, r, err, applog.ComponentOrders, applog.OpDelete)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentOrders).InfoContext(r.Context(), "Order deleted",
		applog.NewFields().WithOwner(string(user.ID)).WithOrder(id, "").WithOperation(applog.OpDelete).ToSlice()...)

	NewHTMXResponse().
		TriggerOrderDeleted(id).
		TriggerSuccessNotification("Encargo eliminado").
		Write(w)
}

// readError answers a failed single-record read: 404 for missing or
// foreign records, otherwise the "could not load" notice.
func (s *Server) readError(w http.ResponseWriter, r *http.Request, err error, component string) {
	if isNotFound(err) {
		NotFoundError(msgNotFound).Write(w)
		return
	}
	s.logLoadError(r, err, component)
	InternalServerError(msgLoadFailed).Write(w)
}

type orderResponse struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	Customer      string `json:"customer"`
	Product       string `json:"product"`
	PurchasePrice string `json:"purchase_price"`
	SalePrice     string `json:"sale_price"`
	Profit        string `json:"profit"`
	Status        string `json:"status"`
}

func orderJSON(o core.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		Date:          o.Date.String(),
		Customer:      o.Customer,
		Product:       o.Product,
		PurchasePrice: o.PurchasePrice.String(),
		SalePrice:     o.SalePrice.String(),
		Profit:        o.Profit.String(),
		Status:        string(o.Status),
	}
}
