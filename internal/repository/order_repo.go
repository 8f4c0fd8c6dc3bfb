package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/domain"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Insert(o *domain.Order) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO orders
		(id, vendor_id, total_amount, currency, payment_status, created_at)
		VALUES (?,?,?,?,?,?)`,
		o.ID, o.VendorID, o.TotalAmount.StringFixed(2), o.Currency,
		string(o.PaymentStatus), o.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepo) BulkInsert(orders []domain.Order) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO orders
		(id, vendor_id, total_amount, currency, payment_status, created_at)
		VALUES (?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range orders {
		o := &orders[i]
		res, err := stmt.Exec(
			o.ID, o.VendorID, o.TotalAmount.StringFixed(2), o.Currency,
			string(o.PaymentStatus), o.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *OrderRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count)
	return count, err
}

func (r *OrderRepo) GetByID(id string) (*domain.Order, error) {
	row := r.db.QueryRow(
		`SELECT id, vendor_id, total_amount, currency, payment_status, created_at
		FROM orders WHERE id = ?`, id,
	)

	var o domain.Order
	var amountStr, status, createdAt string
	err := row.Scan(&o.ID, &o.VendorID, &amountStr, &o.Currency, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.TotalAmount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	o.PaymentStatus = domain.PaymentStatus(status)
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &o, nil
}

// MarkPaid flips the order onto "paid" and reports whether this call took the
// edge. A conditional update keeps the edge detection atomic: a second
// delivery of the same confirmation sees edge=false.
func (r *OrderRepo) MarkPaid(id string) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE orders SET payment_status = ? WHERE id = ? AND payment_status <> ?`,
		string(domain.PaymentPaid), id, string(domain.PaymentPaid),
	)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}
