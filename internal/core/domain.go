package core

import (
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	StatusPending OrderStatus = "pending"
	StatusPaid    OrderStatus = "paid"
)

const (
	maxCustomerLen  = 120
	maxProductLen   = 500
	maxNoteLen      = 2000
	maxReferenceLen = 64
)

type (
	// UserID identifies the owner of every record.
	UserID string

	OrderStatus string

	Date struct {
		time.Time
	}

	Order struct {
		ID            string
		Owner         UserID
		Date          Date
		Customer      string
		Product       string
		PurchasePrice Money
		SalePrice     Money
		Profit        Money // persisted copy of SalePrice - PurchasePrice
		Status        OrderStatus
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	Payment struct {
		ID         string
		OrderID    string
		Owner      UserID
		Amount     Money
		PaidAt     time.Time
		Reference  string // optional bank reference
		ReceiptURL string // optional link to the receipt image
		CreatedAt  time.Time
	}

	Note struct {
		ID        string
		Owner     UserID
		Text      string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		ID           UserID
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativePrice    = errors.New("price cannot be negative")
	ErrEmptyCustomer    = errors.New("empty customer name")
	ErrEmptyProduct     = errors.New("empty product description")
	ErrInvalidStatus    = errors.New("invalid order status")
	ErrMissingOwner     = errors.New("missing owner")
	ErrMissingOrder     = errors.New("missing order reference")
	ErrEmptyNote        = errors.New("empty note")
	ErrInvalidReceipt   = errors.New("receipt must be an http(s) URL")
	ErrReferenceTooLong = errors.New("reference too long (max 64 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location, returned as UTC midnight.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String returns the YYYY-MM-DD form used in forms and storage.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ParseOrderStatus accepts the wire values and defaults empty input to pending.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusPending:
		return StatusPending, nil
	case StatusPaid:
		return StatusPaid, nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s OrderStatus) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

// Label is the user-facing name of the status.
func (s OrderStatus) Label() string {
	if s == StatusPaid {
		return "Pagado"
	}
	return "Pendiente"
}

// DeriveProfit recomputes the persisted profit from the two prices.
func (o *Order) DeriveProfit() {
	o.Profit = o.SalePrice.Sub(o.PurchasePrice)
}

func (o Order) Validate() error {
	if o.Owner == "" {
		return ErrMissingOwner
	}
	if err := o.Date.Validate(); err != nil {
		return err
	}
	if err := checkText(o.Customer, maxCustomerLen, ErrEmptyCustomer, "customer name"); err != nil {
		return err
	}
	if err := checkText(o.Product, maxProductLen, ErrEmptyProduct, "product description"); err != nil {
		return err
	}
	if o.PurchasePrice.IsNegative() || o.SalePrice.IsNegative() {
		return ErrNegativePrice
	}
	if !o.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (p Payment) Validate() error {
	if p.Owner == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(p.OrderID) == "" {
		return ErrMissingOrder
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if utf8.RuneCountInString(p.Reference) > maxReferenceLen {
		return ErrReferenceTooLong
	}
	if p.ReceiptURL != "" {
		u, err := url.Parse(p.ReceiptURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidReceipt
		}
	}
	return nil
}

func (n Note) Validate() error {
	if n.Owner == "" {
		return ErrMissingOwner
	}
	return checkText(n.Text, maxNoteLen, ErrEmptyNote, "note")
}

func checkText(s string, max int, emptyErr error, what string) error {
	if strings.TrimSpace(s) == "" {
		return emptyErr
	}
	if utf8.RuneCountInString(s) > max {
		return errors.New(what + " too long")
	}
	return nil
}
