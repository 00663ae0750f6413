package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"encargos/internal/core"
	"encargos/internal/ledger"
	"encargos/internal/store"

	_ "modernc.org/sqlite"
)

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db     *sql.DB
	schema uint
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; serializing through one connection avoids busy upgrades.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, schema: version}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SchemaVersion is the migration version applied when the repository opened.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schema
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// --- orders

const orderColumns = `id, user_id, order_date, customer_name, product_description,
	purchase_price_cents, sale_price_cents, profit_cents, status, created_at, updated_at`

func scanOrder(row scanner) (core.Order, error) {
	var (
		o                      core.Order
		owner, date, status    string
		purchase, sale, profit int64
		createdAt, updatedAt   string
	)
	err := row.Scan(&o.ID, &owner, &date, &o.Customer, &o.Product,
		&purchase, &sale, &profit, &status, &createdAt, &updatedAt)
	if err != nil {
		return core.Order{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.Owner = core.UserID(owner)
	o.Date = d
	o.PurchasePrice = core.MoneyFromCents(purchase)
	o.SalePrice = core.MoneyFromCents(sale)
	o.Profit = core.MoneyFromCents(profit)
	o.Status = core.OrderStatus(status)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return o, nil
}

func (r *SQLiteRepository) CreateOrder(ctx context.Context, owner core.UserID, o core.Order) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(owner), o.Date.String(), o.Customer, o.Product,
		o.PurchasePrice.Cents(), o.SalePrice.Cents(), o.Profit.Cents(), string(o.Status),
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	slog.DebugContext(ctx, "Order saved to SQLite", "id", o.ID, "sale_cents", o.SalePrice.Cents())
	return nil
}

func (r *SQLiteRepository) UpdateOrder(ctx context.Context, owner core.UserID, o core.Order) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET
		order_date = ?, customer_name = ?, product_description = ?,
		purchase_price_cents = ?, sale_price_cents = ?, profit_cents = ?,
		status = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		o.Date.String(), o.Customer, o.Product,
		o.PurchasePrice.Cents(), o.SalePrice.Cents(), o.Profit.Cents(),
		string(o.Status), formatTime(o.UpdatedAt), o.ID, string(owner))
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) GetOrder(ctx context.Context, owner core.UserID, id string) (core.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? AND user_id = ?`, id, string(owner))
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Order{}, store.ErrNotFound
	}
	if err != nil {
		return core.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *SQLiteRepository) ListOrders(ctx context.Context, owner core.UserID) ([]core.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ?
		ORDER BY order_date DESC, created_at DESC, id`, string(owner))
}

func (r *SQLiteRepository) queryOrders(ctx context.Context, query string, args ...any) ([]core.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteOrder(ctx context.Context, owner core.UserID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE order_id = ? AND user_id = ?`, id, string(owner)); err != nil {
			return fmt.Errorf("delete order payments: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ? AND user_id = ?`, id, string(owner))
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return expectOne(res)
	})
}

func (r *SQLiteRepository) SetOrderStatus(ctx context.Context, owner core.UserID, id string, status core.OrderStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(status), formatTime(time.Now()), id, string(owner))
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	return expectOne(res)
}

// --- payments

const paymentColumns = `id, order_id, user_id, amount_cents, paid_at, reference_number, receipt_url, created_at`

func scanPayment(row scanner) (core.Payment, error) {
	var (
		p                 core.Payment
		owner             string
		amount            int64
		paidAt, createdAt string
	)
	if err := row.Scan(&p.ID, &p.OrderID, &owner, &amount, &paidAt, &p.Reference, &p.ReceiptURL, &createdAt); err != nil {
		return core.Payment{}, err
	}
	p.Owner = core.UserID(owner)
	p.Amount = core.MoneyFromCents(amount)
	p.PaidAt = parseTime(paidAt)
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPayments(ctx context.Context, q querier, query string, args ...any) ([]core.Payment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

const paymentsOfOrder = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = ?
	ORDER BY paid_at DESC, created_at DESC, id`

func (r *SQLiteRepository) ListPayments(ctx context.Context, owner core.UserID, orderID string) ([]core.Payment, error) {
	if _, err := r.GetOrder(ctx, owner, orderID); err != nil {
		return nil, err
	}
	return queryPayments(ctx, r.db, paymentsOfOrder, orderID)
}

func (r *SQLiteRepository) ListOwnerPayments(ctx context.Context, owner core.UserID) ([]core.Payment, error) {
	return queryPayments(ctx, r.db, `SELECT `+paymentColumns+` FROM payments WHERE user_id = ?
		ORDER BY paid_at DESC, created_at DESC, id`, string(owner))
}

func (r *SQLiteRepository) RecordPayment(ctx context.Context, owner core.UserID, p core.Payment) (bool, error) {
	var closed bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? AND user_id = ?`, p.OrderID, string(owner))
		o, err := scanOrder(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		existing, err := queryPayments(ctx, tx, paymentsOfOrder, o.ID)
		if err != nil {
			return err
		}
		closed = o.Status == core.StatusPending && ledger.ShouldAutoClose(o, existing, p.Amount)

		_, err = tx.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, o.ID, string(owner), p.Amount.Cents(), formatTime(p.PaidAt),
			p.Reference, p.ReceiptURL, formatTime(p.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("insert payment: %w", err)
		}
		if closed {
			if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
				string(core.StatusPaid), formatTime(time.Now()), o.ID); err != nil {
				return fmt.Errorf("close order: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}

func (r *SQLiteRepository) DeletePayment(ctx context.Context, owner core.UserID, id string) (core.Payment, error) {
	var p core.Payment
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ? AND user_id = ?`, id, string(owner))
		var err error
		p, err = scanPayment(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load payment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Payment{}, err
	}
	return p, nil
}

// --- notes

func (r *SQLiteRepository) CreateNote(ctx context.Context, owner core.UserID, n core.Note) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notes (id, user_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, string(owner), n.Text, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateNote(ctx context.Context, owner core.UserID, n core.Note) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notes SET content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		n.Text, formatTime(n.UpdatedAt), n.ID, string(owner))
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) ListNotes(ctx context.Context, owner core.UserID) ([]core.Note, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, content, created_at, updated_at FROM notes
		WHERE user_id = ? ORDER BY created_at DESC, id`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	var out []core.Note
	for rows.Next() {
		var (
			n                    core.Note
			uid                  string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&n.ID, &uid, &n.Text, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.Owner = core.UserID(uid)
		n.CreatedAt = parseTime(createdAt)
		n.UpdatedAt = parseTime(updatedAt)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteNote(ctx context.Context, owner core.UserID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, string(owner))
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return expectOne(res)
}

// --- users

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		string(u.ID), u.Email, u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ? COLLATE NOCASE`, email)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id core.UserID) (core.User, error) {
	return r.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, string(id))
}

func (r *SQLiteRepository) getUser(ctx context.Context, query string, arg any) (core.User, error) {
	var (
		u             core.User
		id, createdAt string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&id, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, store.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.ID = core.UserID(id)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// --- reconciliation

func (r *SQLiteRepository) ListCoveredPending(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryEntries(ctx, `SELECT `+orderColumns+` FROM orders o
		WHERE o.status = ?
		  AND (SELECT COALESCE(SUM(p.amount_cents), 0) FROM payments p WHERE p.order_id = o.id) >= o.sale_price_cents
		ORDER BY o.id LIMIT ?`, string(core.StatusPending), limit)
}

func (r *SQLiteRepository) ListEntriesAfter(ctx context.Context, afterID string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryEntries(ctx, `SELECT `+orderColumns+` FROM orders WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
}

// queryEntries loads the orders the query selects along with their payments.
func (r *SQLiteRepository) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, 0, len(orders))
	for _, o := range orders {
		pays, err := queryPayments(ctx, r.db, paymentsOfOrder, o.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.Entry{Order: o, Payments: pays})
	}
	return out, nil
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, owner core.UserID, orderID string) (ledger.Entry, error) {
	o, err := r.GetOrder(ctx, owner, orderID)
	if err != nil {
		return ledger.Entry{}, err
	}
	pays, err := queryPayments(ctx, r.db, paymentsOfOrder, orderID)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{Order: o, Payments: pays}, nil
}

// --- helpers

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
