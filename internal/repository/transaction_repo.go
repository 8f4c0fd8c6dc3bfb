package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/feastly/settlement/internal/domain"
)

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// InsertIdempotent appends a ledger row unless one with the same idempotency
// key already exists. The unique index is the sole duplicate guard; there is
// no read-then-write window. Returns created=false for duplicates.
func (r *TransactionRepo) InsertIdempotent(txn *domain.FinancialTransaction) (bool, error) {
	res, err := r.db.Exec(
		`INSERT OR IGNORE INTO financial_transactions
		(id, type, vendor_id, order_id, subscription_id, gross_amount_cents,
		 commission_percentage, commission_cents, fixed_fee_cents,
		 processor_fee_cents, net_amount_cents, currency, idempotency_key,
		 is_settled, settled_at, settlement_batch_id, is_paid_to_vendor,
		 paid_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,0,NULL,NULL,0,NULL,?)`,
		txn.ID, string(txn.Type), txn.VendorID,
		nullableString(txn.OrderID), nullableString(txn.SubscriptionID),
		txn.GrossAmountCents, txn.CommissionPercentage, txn.CommissionCents,
		txn.FixedFeeCents, txn.ProcessorFeeCents, txn.NetAmountCents,
		txn.Currency, txn.IdempotencyKey, txn.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

func (r *TransactionRepo) GetByID(id string) (*domain.FinancialTransaction, error) {
	return r.getOne("SELECT * FROM financial_transactions WHERE id = ?", id)
}

func (r *TransactionRepo) GetByIdempotencyKey(key string) (*domain.FinancialTransaction, error) {
	return r.getOne("SELECT * FROM financial_transactions WHERE idempotency_key = ?", key)
}

func (r *TransactionRepo) getOne(query string, arg any) (*domain.FinancialTransaction, error) {
	rows, err := r.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanTransaction(rows)
}

type TransactionFilter struct {
	VendorID string
	Type     string
	Settled  *bool
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

func (r *TransactionRepo) List(f TransactionFilter) ([]domain.FinancialTransaction, int, error) {
	where, args := buildTransactionWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM financial_transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT * FROM financial_transactions" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.FinancialTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, total, rows.Err()
}

// ListByBatch returns the ledger rows claimed by a payout batch.
func (r *TransactionRepo) ListByBatch(batchID string) ([]domain.FinancialTransaction, error) {
	rows, err := r.db.Query(
		"SELECT * FROM financial_transactions WHERE settlement_batch_id = ? ORDER BY created_at",
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.FinancialTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// VendorBalance holds a vendor's ledger position in cents. Unsettled and
// settled sums are signed by transaction type, so refunds and chargebacks
// reduce the balance.
type VendorBalance struct {
	VendorID            string `json:"vendor_id"`
	UnsettledCents      int64  `json:"unsettled_cents"`
	SettledCents        int64  `json:"settled_cents"`
	PaidOutCents        int64  `json:"paid_out_cents"`
	TransactionCount    int    `json:"transaction_count"`
	UnsettledTxnCount   int    `json:"unsettled_transaction_count"`
	CommissionPaidCents int64  `json:"commission_paid_cents"`
}

func (r *TransactionRepo) GetVendorBalance(vendorID string) (*VendorBalance, error) {
	b := &VendorBalance{VendorID: vendorID}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_settled = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_settled = 0 THEN net_amount_cents * dir ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_settled = 1 THEN net_amount_cents * dir ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_paid_to_vendor = 1 THEN net_amount_cents * dir ELSE 0 END), 0),
			COALESCE(SUM(commission_cents), 0)
		FROM (
			SELECT *,
				CASE type
					WHEN 'commission' THEN 1
					WHEN 'refund' THEN -1
					WHEN 'chargeback' THEN -1
					WHEN 'subscription_fee' THEN -1
					ELSE 0
				END AS dir
			FROM financial_transactions WHERE vendor_id = ?
		)
	`, vendorID).Scan(
		&b.TransactionCount, &b.UnsettledTxnCount, &b.UnsettledCents,
		&b.SettledCents, &b.PaidOutCents, &b.CommissionPaidCents,
	)
	if err != nil {
		return nil, fmt.Errorf("vendor balance: %w", err)
	}
	return b, nil
}

// LedgerStats holds platform-wide ledger aggregates in cents.
type LedgerStats struct {
	Total              int   `json:"total"`
	Unsettled          int   `json:"unsettled"`
	Settled            int   `json:"settled"`
	GrossVolumeCents   int64 `json:"gross_volume_cents"`
	CommissionCents    int64 `json:"commission_cents"`
	ProcessorFeeCents  int64 `json:"processor_fee_cents"`
	UnsettledNetCents  int64 `json:"unsettled_net_cents"`
	AbsorbedLossCents  int64 `json:"absorbed_loss_cents"`
}

func (r *TransactionRepo) GetLedgerStats() (*LedgerStats, error) {
	s := &LedgerStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_settled = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_settled = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'commission' THEN gross_amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'commission' THEN commission_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'commission' THEN processor_fee_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_settled = 0 AND type = 'commission' THEN net_amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'adjustment' THEN gross_amount_cents ELSE 0 END), 0)
		FROM financial_transactions
	`).Scan(
		&s.Total, &s.Unsettled, &s.Settled, &s.GrossVolumeCents,
		&s.CommissionCents, &s.ProcessorFeeCents, &s.UnsettledNetCents,
		&s.AbsorbedLossCents,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	return s, nil
}

// --- helpers ---

func buildTransactionWhere(f TransactionFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.VendorID != "" {
		clauses = append(clauses, "vendor_id = ?")
		args = append(args, f.VendorID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Settled != nil {
		clauses = append(clauses, "is_settled = ?")
		args = append(args, boolToInt(*f.Settled))
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTransaction(rows *sql.Rows) (*domain.FinancialTransaction, error) {
	var txn domain.FinancialTransaction
	var typ, createdAt string
	var orderID, subID, settledAt, batchID, paidAt sql.NullString
	var settled, paid int

	err := rows.Scan(
		&txn.ID, &typ, &txn.VendorID, &orderID, &subID,
		&txn.GrossAmountCents, &txn.CommissionPercentage, &txn.CommissionCents,
		&txn.FixedFeeCents, &txn.ProcessorFeeCents, &txn.NetAmountCents,
		&txn.Currency, &txn.IdempotencyKey,
		&settled, &settledAt, &batchID, &paid, &paidAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Type = domain.TransactionType(typ)
	txn.OrderID = orderID.String
	txn.SubscriptionID = subID.String
	txn.IsSettled = settled != 0
	txn.IsPaidToVendor = paid != 0
	txn.SettlementBatchID = batchID.String
	txn.SettledAt = parseNullableTime(settledAt)
	txn.PaidAt = parseNullableTime(paidAt)
	txn.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &txn, nil
}
