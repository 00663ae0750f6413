package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"encargos/internal/core"
	"encargos/internal/services"
)

// maxBodyBytes caps form and JSON bodies.
const maxBodyBytes = 64 << 10

// RequestBodyParser reads a request body once and serves fields from
// either JSON or form-encoded data, so the same handlers accept htmx
// forms and API clients.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body as JSON when it looks like JSON, otherwise as
// form values.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	switch {
	case trimmed == "":
		p.formData = url.Values{}
	case trimmed[0] == '{':
		p.jsonData = make(map[string]any)
		p.err = json.Unmarshal(p.body, &p.jsonData)
	default:
		p.formData, p.err = url.ParseQuery(trimmed)
	}
	return p.err
}

// Get returns a sanitized value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// fieldError names the form field that failed to parse.
type fieldError struct {
	Field string
	Err   error
}

func (e *fieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }
func (e *fieldError) Unwrap() error { return e.Err }

// parseMoneyField reads a non-empty amount; empty input is zero.
func parseMoneyField(p *RequestBodyParser, key string) (core.Money, error) {
	raw := p.Get(key)
	if raw == "" {
		return core.Zero(), nil
	}
	m, err := core.ParseMoney(raw)
	if err != nil {
		return core.Money{}, &fieldError{Field: key, Err: err}
	}
	return m, nil
}

// parseOrderInput reads the order form. An empty date or status leaves the
// field zero so the service applies its defaults.
func parseOrderInput(p *RequestBodyParser) (services.OrderInput, error) {
	var in services.OrderInput
	if err := p.Parse(); err != nil {
		return in, &fieldError{Field: "body", Err: err}
	}

	if raw := p.Get("date"); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			return in, &fieldError{Field: "date", Err: err}
		}
		in.Date = d
	}

	var err error
	if in.PurchasePrice, err = parseMoneyField(p, "purchase_price"); err != nil {
		return in, err
	}
	if in.SalePrice, err = parseMoneyField(p, "sale_price"); err != nil {
		return in, err
	}

	if raw := p.Get("status"); raw != "" {
		st, err := core.ParseOrderStatus(raw)
		if err != nil {
			return in, &fieldError{Field: "status", Err: err}
		}
		in.Status = st
	}

	in.Customer = p.Get("customer")
	in.Product = p.Get("product")
	return in, nil
}

// parsePaymentInput reads the payment form. paid_at accepts a date or an
// HTML datetime-local value; empty means now.
func parsePaymentInput(p *RequestBodyParser) (services.PaymentInput, error) {
	var in services.PaymentInput
	if err := p.Parse(); err != nil {
		return in, &fieldError{Field: "body", Err: err}
	}

	amount := p.Get("amount")
	if amount == "" {
		return in, &fieldError{Field: "amount", Err: core.ErrInvalidAmount}
	}
	m, err := core.ParseMoney(amount)
	if err != nil {
		return in, &fieldError{Field: "amount", Err: err}
	}
	in.Amount = m

	if raw := p.Get("paid_at"); raw != "" {
		t, err := parsePaidAt(raw)
		if err != nil {
			return in, &fieldError{Field: "paid_at", Err: core.ErrInvalidDate}
		}
		in.PaidAt = t
	}

	in.Reference = p.Get("reference")
	in.ReceiptURL = p.Get("receipt_url")
	return in, nil
}

func parsePaidAt(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.ErrInvalidDate
}

// parseOrderQuery reads the list filters. Unknown status values keep
// every status.
func parseOrderQuery(q url.Values) services.OrderQuery {
	query := services.OrderQuery{Search: sanitizeInput(q.Get("q"))}
	switch st := core.OrderStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))); st {
	case core.StatusPending, core.StatusPaid:
		query.Status = st
	}
	return query
}
