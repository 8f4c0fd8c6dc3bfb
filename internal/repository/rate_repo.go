package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/domain"
)

type RateRepo struct {
	db *sql.DB
}

func NewRateRepo(db *sql.DB) *RateRepo {
	return &RateRepo{db: db}
}

func (r *RateRepo) Insert(rate *domain.CommissionRate) error {
	_, err := r.db.Exec(
		`INSERT INTO commission_rates
		(id, vendor_id, percentage, fixed_fee, currency, promo_percentage,
		 promo_fixed_fee, promo_end_date, min_order_amount, max_order_amount,
		 effective_from, effective_until, is_active, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rate.ID, nullableString(rate.VendorID),
		rate.Percentage.StringFixed(4), rate.FixedFee.StringFixed(2),
		rate.Currency,
		formatNullableDecimal(rate.PromoPercentage, 4),
		formatNullableDecimal(rate.PromoFixedFee, 2),
		formatNullableTime(rate.PromoEndDate),
		formatNullableDecimal(rate.MinOrderAmount, 2),
		formatNullableDecimal(rate.MaxOrderAmount, 2),
		rate.EffectiveFrom.Format(time.RFC3339),
		formatNullableTime(rate.EffectiveUntil),
		boolToInt(rate.IsActive), rate.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert rate: %w", err)
	}
	return nil
}

// BulkInsert inserts a batch of rates inside one transaction, skipping rows
// whose ID already exists. Returns the number of newly inserted rows.
func (r *RateRepo) BulkInsert(rates []domain.CommissionRate) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO commission_rates
		(id, vendor_id, percentage, fixed_fee, currency, promo_percentage,
		 promo_fixed_fee, promo_end_date, min_order_amount, max_order_amount,
		 effective_from, effective_until, is_active, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range rates {
		rate := &rates[i]
		res, err := stmt.Exec(
			rate.ID, nullableString(rate.VendorID),
			rate.Percentage.StringFixed(4), rate.FixedFee.StringFixed(2),
			rate.Currency,
			formatNullableDecimal(rate.PromoPercentage, 4),
			formatNullableDecimal(rate.PromoFixedFee, 2),
			formatNullableTime(rate.PromoEndDate),
			formatNullableDecimal(rate.MinOrderAmount, 2),
			formatNullableDecimal(rate.MaxOrderAmount, 2),
			rate.EffectiveFrom.Format(time.RFC3339),
			formatNullableTime(rate.EffectiveUntil),
			boolToInt(rate.IsActive), rate.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert rate %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *RateRepo) GetByID(id string) (*domain.CommissionRate, error) {
	rows, err := r.db.Query(selectRateCols+" FROM commission_rates WHERE id = ?", id)
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
	return scanRate(rows)
}

// ListCandidates returns active rates that are either global or specific to
// the given vendor. Window and amount-band filtering happens in the registry,
// which owns the resolution algorithm.
func (r *RateRepo) ListCandidates(vendorID string) ([]domain.CommissionRate, error) {
	rows, err := r.db.Query(
		selectRateCols+` FROM commission_rates
		WHERE is_active = 1 AND (vendor_id = ? OR vendor_id IS NULL)
		ORDER BY effective_from DESC, created_at DESC`,
		vendorID,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var rates []domain.CommissionRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rates = append(rates, *rate)
	}
	return rates, rows.Err()
}

// Deactivate turns a rate off without mutating its pricing fields. Rates
// referenced by settled transactions are only ever deactivated, never edited.
func (r *RateRepo) Deactivate(id string) error {
	res, err := r.db.Exec("UPDATE commission_rates SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	ra, _ := res.RowsAffected()
	if ra == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ImportExistsByHash checks whether a rate-schedule file with the given hash
// has already been imported (idempotency check).
func (r *RateRepo) ImportExistsByHash(hash string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM rate_imports WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

func (r *RateRepo) InsertImport(id, hash, format string, recordCount int, importedAt time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO rate_imports (id, file_hash, format, record_count, imported_at)
		VALUES (?,?,?,?,?)`,
		id, hash, format, recordCount, importedAt.Format(time.RFC3339),
	)
	return err
}

// --- helpers ---

const selectRateCols = `SELECT id, vendor_id, percentage, fixed_fee, currency,
	promo_percentage, promo_fixed_fee, promo_end_date, min_order_amount,
	max_order_amount, effective_from, effective_until, is_active, created_at`

func scanRate(rows *sql.Rows) (*domain.CommissionRate, error) {
	var rate domain.CommissionRate
	var vendorID, promoPct, promoFee, promoEnd sql.NullString
	var minAmt, maxAmt, effUntil sql.NullString
	var pctStr, feeStr, effFrom, createdAt string
	var active int

	err := rows.Scan(
		&rate.ID, &vendorID, &pctStr, &feeStr, &rate.Currency,
		&promoPct, &promoFee, &promoEnd, &minAmt, &maxAmt,
		&effFrom, &effUntil, &active, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	rate.VendorID = vendorID.String
	rate.Percentage, err = decimal.NewFromString(pctStr)
	if err != nil {
		return nil, fmt.Errorf("parse percentage: %w", err)
	}
	rate.FixedFee, err = decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("parse fixed fee: %w", err)
	}

	if rate.PromoPercentage, err = parseNullableDecimal(promoPct); err != nil {
		return nil, fmt.Errorf("parse promo percentage: %w", err)
	}
	if rate.PromoFixedFee, err = parseNullableDecimal(promoFee); err != nil {
		return nil, fmt.Errorf("parse promo fixed fee: %w", err)
	}
	if rate.MinOrderAmount, err = parseNullableDecimal(minAmt); err != nil {
		return nil, fmt.Errorf("parse min amount: %w", err)
	}
	if rate.MaxOrderAmount, err = parseNullableDecimal(maxAmt); err != nil {
		return nil, fmt.Errorf("parse max amount: %w", err)
	}

	rate.PromoEndDate = parseNullableTime(promoEnd)
	rate.EffectiveUntil = parseNullableTime(effUntil)
	rate.EffectiveFrom, _ = time.Parse(time.RFC3339, effFrom)
	rate.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rate.IsActive = active != 0

	return &rate, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatNullableDecimal(d *decimal.Decimal, places int32) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(places)
}

func parseNullableDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
