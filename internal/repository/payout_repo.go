package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/feastly/settlement/internal/domain"
)

type PayoutRepo struct {
	db *sql.DB
}

func NewPayoutRepo(db *sql.DB) *PayoutRepo {
	return &PayoutRepo{db: db}
}

// ClaimUnsettled creates the batch and claims every unsettled ledger row for
// it inside a single database transaction. The claim is one conditional
// UPDATE on is_settled = 0, so two concurrent runs partition the unsettled
// set without overlap: whichever statement runs second sees nothing left to
// claim. Returns domain.ErrBatchEmpty (and persists nothing) when there is
// nothing to claim.
func (r *PayoutRepo) ClaimUnsettled(batch *domain.PayoutBatch) ([]domain.VendorPayout, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := batch.CreatedAt
	_, err = tx.Exec(
		`INSERT INTO payout_batches
		(id, payout_date, status, total_vendors, total_amount_cents, created_at)
		VALUES (?,?,?,0,0,?)`,
		batch.ID, batch.PayoutDate.Format(time.RFC3339),
		string(domain.BatchPending), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	// The claim. Conditional on is_settled so rows already taken by another
	// batch are never touched.
	res, err := tx.Exec(
		`UPDATE financial_transactions
		SET is_settled = 1, settled_at = ?, settlement_batch_id = ?
		WHERE is_settled = 0`,
		now.Format(time.RFC3339), batch.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("claim transactions: %w", err)
	}
	claimed, _ := res.RowsAffected()
	if claimed == 0 {
		return nil, domain.ErrBatchEmpty
	}

	// Aggregate the claimed rows per vendor, signed by transaction type.
	rows, err := tx.Query(
		`SELECT vendor_id,
			COALESCE(SUM(net_amount_cents *
				CASE type
					WHEN 'commission' THEN 1
					WHEN 'refund' THEN -1
					WHEN 'chargeback' THEN -1
					WHEN 'subscription_fee' THEN -1
					ELSE 0
				END), 0),
			COUNT(*)
		FROM financial_transactions
		WHERE settlement_batch_id = ?
		GROUP BY vendor_id
		ORDER BY vendor_id`,
		batch.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate claimed: %w", err)
	}

	var payouts []domain.VendorPayout
	var totalCents int64
	for rows.Next() {
		p := domain.VendorPayout{
			ID:        "VP-" + uuid.NewString(),
			BatchID:   batch.ID,
			Status:    domain.BatchPending,
			CreatedAt: now,
		}
		if err := rows.Scan(&p.VendorID, &p.AmountCents, &p.TransactionCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		totalCents += p.AmountCents
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	stmt, err := tx.Prepare(
		`INSERT INTO vendor_payouts
		(id, batch_id, vendor_id, amount_cents, transaction_count, status, created_at)
		VALUES (?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare payouts: %w", err)
	}
	defer stmt.Close()

	for i := range payouts {
		p := &payouts[i]
		if _, err := stmt.Exec(
			p.ID, p.BatchID, p.VendorID, p.AmountCents, p.TransactionCount,
			string(p.Status), p.CreatedAt.Format(time.RFC3339),
		); err != nil {
			return nil, fmt.Errorf("insert payout %s: %w", p.VendorID, err)
		}
	}

	if _, err := tx.Exec(
		`UPDATE payout_batches SET total_vendors = ?, total_amount_cents = ? WHERE id = ?`,
		len(payouts), totalCents, batch.ID,
	); err != nil {
		return nil, fmt.Errorf("finalize batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	batch.Status = domain.BatchPending
	batch.TotalVendors = len(payouts)
	batch.TotalAmountCents = totalCents
	return payouts, nil
}

func (r *PayoutRepo) GetBatch(id string) (*domain.PayoutBatch, error) {
	row := r.db.QueryRow(
		`SELECT id, payout_date, status, total_vendors, total_amount_cents,
			created_at, completed_at
		FROM payout_batches WHERE id = ?`, id,
	)

	var b domain.PayoutBatch
	var payoutDate, status, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&b.ID, &payoutDate, &status, &b.TotalVendors,
		&b.TotalAmountCents, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}

	b.Status = domain.BatchStatus(status)
	b.PayoutDate, _ = time.Parse(time.RFC3339, payoutDate)
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.CompletedAt = parseNullableTime(completedAt)
	return &b, nil
}

func (r *PayoutRepo) ListBatches(limit, page int) ([]domain.PayoutBatch, int, error) {
	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM payout_batches").Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := r.db.Query(
		`SELECT id, payout_date, status, total_vendors, total_amount_cents,
			created_at, completed_at
		FROM payout_batches ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var batches []domain.PayoutBatch
	for rows.Next() {
		var b domain.PayoutBatch
		var payoutDate, status, createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&b.ID, &payoutDate, &status, &b.TotalVendors,
			&b.TotalAmountCents, &createdAt, &completedAt); err != nil {
			return nil, 0, err
		}
		b.Status = domain.BatchStatus(status)
		b.PayoutDate, _ = time.Parse(time.RFC3339, payoutDate)
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		b.CompletedAt = parseNullableTime(completedAt)
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

func (r *PayoutRepo) ListPayouts(batchID string) ([]domain.VendorPayout, error) {
	rows, err := r.db.Query(
		`SELECT id, batch_id, vendor_id, amount_cents, transaction_count,
			status, created_at
		FROM vendor_payouts WHERE batch_id = ? ORDER BY vendor_id`, batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.VendorPayout
	for rows.Next() {
		var p domain.VendorPayout
		var status, createdAt string
		if err := rows.Scan(&p.ID, &p.BatchID, &p.VendorID, &p.AmountCents,
			&p.TransactionCount, &status, &createdAt); err != nil {
			return nil, err
		}
		p.Status = domain.BatchStatus(status)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// UpdateBatchStatus moves a batch (and its child payouts) to a new lifecycle
// state. Completed states stamp completed_at. Claimed transactions are never
// rolled back, even on failure.
func (r *PayoutRepo) UpdateBatchStatus(id string, status domain.BatchStatus, at time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var completedAt any
	if status == domain.BatchProcessed || status == domain.BatchFailed {
		completedAt = at.Format(time.RFC3339)
	}

	res, err := tx.Exec(
		`UPDATE payout_batches SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	ra, _ := res.RowsAffected()
	if ra == 0 {
		return domain.ErrBatchNotFound
	}

	if _, err := tx.Exec(
		`UPDATE vendor_payouts SET status = ? WHERE batch_id = ?`,
		string(status), id,
	); err != nil {
		return fmt.Errorf("update payouts: %w", err)
	}

	return tx.Commit()
}

// MarkPaidOut flips is_paid_to_vendor on every transaction claimed by the
// batch. Called when a processed batch's disbursement has gone out.
func (r *PayoutRepo) MarkPaidOut(batchID string, at time.Time) (int64, error) {
	res, err := r.db.Exec(
		`UPDATE financial_transactions
		SET is_paid_to_vendor = 1, paid_at = ?
		WHERE settlement_batch_id = ? AND is_paid_to_vendor = 0`,
		at.Format(time.RFC3339), batchID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark paid out: %w", err)
	}
	return res.RowsAffected()
}
