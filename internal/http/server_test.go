package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"encargos/internal/auth"
	"encargos/internal/core"
	applog "encargos/internal/log"
	"encargos/internal/services"
	"encargos/internal/store/memory"
)

var errBroken = errors.New("disk on fire")

// brokenStore fails every list read and the health ping.
type brokenStore struct {
	*memory.Store
}

func (b brokenStore) ListOrders(context.Context, core.UserID) ([]core.Order, error) {
	return nil, errBroken
}

func (b brokenStore) ListNotes(context.Context, core.UserID) ([]core.Note, error) {
	return nil, errBroken
}

func (b brokenStore) Ping(context.Context) error { return errBroken }

type fixedRate struct{ rate decimal.Decimal }

func (f fixedRate) Rate() (decimal.Decimal, bool) { return f.rate, !f.rate.IsZero() }
func (f fixedRate) UpdatedAt() time.Time          { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }

type testApp struct {
	srv   *Server
	store *memory.Store
	token string
	user  core.User
}

type appOption func(*Options, *memory.Store)

func withBrokenReads(o *Options, st *memory.Store) {
	b := brokenStore{st}
	statsSvc := services.NewStatsService(b, st)
	o.Services.Orders = services.NewOrderService(b, st, nil, statsSvc)
	o.Services.Notes = services.NewNoteService(b)
	o.Services.Stats = statsSvc
	o.Store = b
}

func withRate(rate string) appOption {
	return func(o *Options, _ *memory.Store) {
		o.Rates = fixedRate{rate: decimal.RequireFromString(rate)}
	}
}

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()
	st := memory.New()
	tokens := auth.NewTokenManager("test-secret-0123456789", time.Hour)
	statsSvc := services.NewStatsService(st, st)

	o := Options{
		Addr:   ":0",
		Logger: applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
		Services: Services{
			Orders:   services.NewOrderService(st, st, nil, statsSvc),
			Payments: services.NewPaymentService(st, st, nil, statsSvc),
			Notes:    services.NewNoteService(st),
			Stats:    statsSvc,
			Auth:     services.NewAuthService(st, tokens, bcrypt.MinCost),
		},
		Store: st,
	}
	for _, opt := range opts {
		opt(&o, st)
	}

	srv, err := NewServer(o)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.limiter.Stop() })

	sess, err := o.Services.Auth.SignUp(context.Background(), "ana@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return &testApp{srv: srv, store: st, token: sess.Token, user: sess.User}
}

// do sends a request with the session cookie. A non-nil form is sent
// url-encoded.
func (a *testApp) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if a.token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: a.token})
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) createOrder(t *testing.T, customer, sale string) core.Order {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/orders", url.Values{
		"date":           {"2024-03-10"},
		"customer":       {customer},
		"product":        {"Zapatos"},
		"purchase_price": {"20"},
		"sale_price":     {sale},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create order status=%d body=%s", rr.Code, rr.Body.String())
	}
	orders, err := a.store.ListOrders(context.Background(), a.user.ID)
	if err != nil || len(orders) == 0 {
		t.Fatalf("ListOrders: %v (%d orders)", err, len(orders))
	}
	for _, o := range orders {
		if o.Customer == customer {
			return o
		}
	}
	t.Fatalf("order for %q not stored", customer)
	return core.Order{}
}

func TestHealthAndReady(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := app.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	broken := newTestApp(t, withBrokenReads)
	rr := broken.do(t, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store: status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"store":"unavailable"`) {
		t.Errorf("readyz body = %s", rr.Body.String())
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	app := newTestApp(t)
	rr := app.do(t, http.MethodGet, "/healthz", nil)
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestSessionRequired(t *testing.T) {
	app := newTestApp(t)
	app.token = ""

	rr := app.do(t, http.MethodGet, "/", nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("GET / without session: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/orders", nil)
	req.Header.Set("HX-Request", "true")
	hx := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(hx, req)
	if hx.Code != http.StatusUnauthorized || hx.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("htmx without session: status=%d redirect=%q", hx.Code, hx.Header().Get("HX-Redirect"))
	}

	app.token = "garbage"
	rr = app.do(t, http.MethodPost, "/orders", url.Values{"customer": {"x"}})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("POST with bad token: status=%d", rr.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	app := newTestApp(t)
	app.token = ""

	rr := app.do(t, http.MethodGet, "/login", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Iniciar sesión") {
		t.Fatalf("login page status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/login", url.Values{"email": {"ana@example.com"}, "password": {"wrong-pass"}})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Correo o contraseña incorrectos") {
		t.Error("bad password message missing")
	}

	rr = app.do(t, http.MethodPost, "/signup", url.Values{"email": {"ANA@example.com"}, "password": {"secret123"}})
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "ya está registrado") {
		t.Fatalf("duplicate signup status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/login", url.Values{"email": {" Ana@Example.com "}, "password": {"secret123"}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("login status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookie {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("session cookie not set correctly: %+v", session)
	}

	app.token = session.Value
	rr = app.do(t, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Nuevo encargo") {
		t.Fatalf("orders page status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/logout", nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("logout status=%d", rr.Code)
	}
}

func TestOrderLifecycle(t *testing.T) {
	app := newTestApp(t)
	order := app.createOrder(t, "Ana María", "50")
	app.createOrder(t, "Luis", "30")

	rr := app.do(t, http.MethodGet, "/ui/orders", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Ana María", "Luis", "$80.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("list missing %q", want)
		}
	}

	rr = app.do(t, http.MethodGet, "/ui/orders?q=ana", nil)
	body = rr.Body.String()
	if strings.Contains(body, "Luis") {
		t.Error("search should hide other customers")
	}
	if !strings.Contains(body, "debe") || !strings.Contains(body, "$50.00") {
		t.Errorf("search should show customer debt: %s", body)
	}

	rr = app.do(t, http.MethodGet, "/orders/"+order.ID+"/edit", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `value="Ana María"`) {
		t.Fatalf("edit form status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/orders/"+order.ID, url.Values{
		"date":           {"2024-03-10"},
		"customer":       {"Ana María"},
		"product":        {"Zapatos rojos"},
		"purchase_price": {"20"},
		"sale_price":     {"60"},
		"status":         {"pending"},
	})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), EventOrderSaved) {
		t.Fatalf("update status=%d trigger=%q", rr.Code, rr.Header().Get("HX-Trigger"))
	}
	updated, err := app.store.GetOrder(context.Background(), app.user.ID, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if updated.Profit.String() != "40.00" || updated.Product != "Zapatos rojos" {
		t.Errorf("updated order = %+v", updated)
	}

	rr = app.do(t, http.MethodDelete, "/orders/"+order.ID, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), EventOrderDeleted) {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr = app.do(t, http.MethodDelete, "/orders/"+order.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d, want 404", rr.Code)
	}
}

func TestOrderValidation(t *testing.T) {
	app := newTestApp(t)
	tests := []struct {
		name string
		form url.Values
	}{
		{"bad amount", url.Values{"customer": {"Ana"}, "product": {"x"}, "sale_price": {"abc"}}},
		{"bad date", url.Values{"customer": {"Ana"}, "product": {"x"}, "date": {"10/03/2024"}}},
		{"missing customer", url.Values{"customer": {"  "}, "product": {"x"}}},
		{"unknown status", url.Values{"customer": {"Ana"}, "product": {"x"}, "status": {"lost"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(t, http.MethodPost, "/orders", tt.form)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}

	orders, _ := app.store.ListOrders(context.Background(), app.user.ID)
	if len(orders) != 0 {
		t.Errorf("invalid input stored %d orders", len(orders))
	}
}

func TestPaymentsCloseOrder(t *testing.T) {
	app := newTestApp(t)
	order := app.createOrder(t, "Ana", "50")
	path := "/orders/" + order.ID + "/payments"

	rr := app.do(t, http.MethodPost, path, url.Values{"amount": {"20"}, "reference": {"0102-123"}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("first payment status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"closed":false`) {
		t.Errorf("trigger = %s", rr.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(rr.Body.String(), "$30.00") {
		t.Error("panel should show the remaining balance")
	}

	rr = app.do(t, http.MethodPost, path, url.Values{"amount": {"30"}})
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"closed":true`) {
		t.Fatalf("closing payment trigger = %s", rr.Header().Get("HX-Trigger"))
	}
	got, _ := app.store.GetOrder(context.Background(), app.user.ID, order.ID)
	if got.Status != core.StatusPaid {
		t.Fatalf("status = %s, want paid", got.Status)
	}

	rr = app.do(t, http.MethodPost, path, url.Values{"amount": {"0"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero payment status=%d", rr.Code)
	}

	payments, _ := app.store.ListPayments(context.Background(), app.user.ID, order.ID)
	rr = app.do(t, http.MethodDelete, "/payments/"+payments[0].ID, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), EventPaymentDeleted) {
		t.Fatalf("delete payment status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/orders/missing/payments", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("payments of missing order status=%d", rr.Code)
	}
}

func TestForeignOrdersAreHidden(t *testing.T) {
	app := newTestApp(t)
	order := app.createOrder(t, "Ana", "50")

	other, err := app.srv.svc.Auth.SignUp(context.Background(), "luis@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	app.token = other.Token

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/orders/" + order.ID + "/edit"},
		{http.MethodDelete, "/orders/" + order.ID},
		{http.MethodGet, "/orders/" + order.ID + "/payments"},
	} {
		rr := app.do(t, tc.method, tc.path, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s status=%d, want 404", tc.method, tc.path, rr.Code)
		}
	}

	rr := app.do(t, http.MethodPost, "/orders/"+order.ID+"/payments", url.Values{"amount": {"5"}})
	if rr.Code != http.StatusNotFound {
		t.Errorf("foreign payment status=%d, want 404", rr.Code)
	}
}

func TestReadFailureIsNotEmptyState(t *testing.T) {
	app := newTestApp(t, withBrokenReads)

	for _, path := range []string{"/ui/orders", "/notes", "/ui/stats"} {
		rr := app.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("%s status=%d, want 500", path, rr.Code)
		}
		body := rr.Body.String()
		if !strings.Contains(body, msgLoadFailed) {
			t.Errorf("%s should show the load failure notice", path)
		}
		if strings.Contains(body, "Aún no hay") {
			t.Errorf("%s rendered the empty state on a read failure", path)
		}
	}
}

func TestExchangeRateDisplay(t *testing.T) {
	unknown := newTestApp(t)
	unknown.createOrder(t, "Ana", "50")

	rr := unknown.do(t, http.MethodGet, "/api/rate", nil)
	if !strings.Contains(rr.Body.String(), `"rate":null`) || !strings.Contains(rr.Body.String(), `"known":false`) {
		t.Fatalf("rate body = %s", rr.Body.String())
	}
	if strings.Contains(unknown.do(t, http.MethodGet, "/ui/orders", nil).Body.String(), "Bs.") {
		t.Error("bolívar amounts shown while the rate is unknown")
	}

	known := newTestApp(t, withRate("36.5"))
	known.createOrder(t, "Ana", "50")

	var body struct {
		Rate  string `json:"rate"`
		Known bool   `json:"known"`
	}
	rr = known.do(t, http.MethodGet, "/api/rate", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate: %v", err)
	}
	if !body.Known || body.Rate != "36.5" {
		t.Errorf("rate = %+v", body)
	}
	if !strings.Contains(known.do(t, http.MethodGet, "/ui/orders", nil).Body.String(), "Bs.") {
		t.Error("bolívar amounts missing while the rate is known")
	}
}

func TestStatsPanel(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(t, http.MethodGet, "/stats", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Ingresos") {
		t.Fatalf("stats page status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/ui/stats?period=year", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Último año") {
		t.Fatalf("year panel status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/ui/stats?period=decade", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown period status=%d", rr.Code)
	}
}

func TestNotes(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(t, http.MethodGet, "/notes", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Aún no hay notas") {
		t.Fatalf("empty notes page status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/notes", url.Values{"text": {"Llamar a Ana"}})
	if rr.Code != http.StatusCreated || !strings.Contains(rr.Body.String(), "Llamar a Ana") {
		t.Fatalf("create note status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/notes", url.Values{"text": {"   "}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty note status=%d", rr.Code)
	}

	notes, _ := app.store.ListNotes(context.Background(), app.user.ID)
	if len(notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(notes))
	}

	rr = app.do(t, http.MethodPost, "/notes/"+notes[0].ID, url.Values{"text": {"Llamar a Ana el lunes"}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "el lunes") {
		t.Fatalf("update note status=%d", rr.Code)
	}

	rr = app.do(t, http.MethodDelete, "/notes/"+notes[0].ID, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Aún no hay notas") {
		t.Fatalf("delete note status=%d", rr.Code)
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	app := newTestApp(t)
	app.token = ""

	var last int
	for i := 0; i < 61; i++ {
		rr := app.do(t, http.MethodPost, "/logout", nil)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("61st write status=%d, want 429", last)
	}

	rr := app.do(t, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"rate_limited":1`) {
		t.Errorf("healthz metrics = %s", rr.Body.String())
	}
}
