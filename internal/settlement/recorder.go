package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/commission"
	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/money"
	"github.com/feastly/settlement/internal/rates"
	"github.com/feastly/settlement/internal/repository"
)

// Recorder turns order payment confirmations into immutable ledger rows.
// The idempotency key derived from the order id is the sole duplicate guard,
// so concurrent or redelivered confirmations for the same order are safe.
type Recorder struct {
	orders   *repository.OrderRepo
	txns     *repository.TransactionRepo
	registry *rates.Registry
	fees     FeeEstimator
	logger   *zap.Logger
}

func NewRecorder(
	orders *repository.OrderRepo,
	txns *repository.TransactionRepo,
	registry *rates.Registry,
	fees FeeEstimator,
	logger *zap.Logger,
) *Recorder {
	if fees == nil {
		fees = NewCardFeeEstimator()
	}
	return &Recorder{
		orders:   orders,
		txns:     txns,
		registry: registry,
		fees:     fees,
		logger:   logger,
	}
}

func paidKey(orderID string) string {
	return fmt.Sprintf("order:%s:paid", orderID)
}

// HandlePaymentConfirmed is the payment-webhook entry point: it takes the
// order's payment-status edge onto "paid" and records the commission
// transaction. Redeliveries take no edge and fall through to the idempotent
// insert, so a confirmation that failed after the status flip still gets its
// ledger row on retry.
func (r *Recorder) HandlePaymentConfirmed(orderID string) (*domain.FinancialTransaction, error) {
	order, err := r.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	edge, err := r.orders.MarkPaid(orderID)
	if err != nil {
		return nil, err
	}
	if !edge {
		r.logger.Debug("payment confirmation redelivered",
			zap.String("order_id", orderID))
	}
	order.PaymentStatus = domain.PaymentPaid

	return r.RecordSettlement(order)
}

// RecordSettlement resolves the applicable rate at the order's creation date,
// computes the commission breakdown, estimates the processor fee and appends
// a commission ledger row. If a row with the same idempotency key already
// exists the call is a no-op returning the existing row.
//
// A storage failure is returned to the caller: the triggering event must be
// redelivered, because dropping a paid order's transaction silently would be
// a financial-integrity violation.
func (r *Recorder) RecordSettlement(order *domain.Order) (*domain.FinancialTransaction, error) {
	gross := order.TotalAmount
	if gross.IsNegative() {
		return nil, fmt.Errorf("order %s has negative total %s", order.ID, gross)
	}
	currency := order.Currency
	if currency == "" {
		currency = money.LedgerCurrency
	}
	if currency != money.LedgerCurrency {
		converted, err := money.ToLedger(gross, currency)
		if err != nil {
			return nil, fmt.Errorf("normalize order %s: %w", order.ID, err)
		}
		gross = converted
		currency = money.LedgerCurrency
	}

	resolved, err := r.registry.Resolve(order.VendorID, gross, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("resolve rate: %w", err)
	}

	bd := commission.Compute(resolved, gross)
	procFee := r.fees.Estimate(gross)
	now := time.Now().UTC()

	txn := &domain.FinancialTransaction{
		ID:                   "TXN-" + uuid.NewString(),
		Type:                 domain.TypeCommission,
		VendorID:             order.VendorID,
		OrderID:              order.ID,
		GrossAmountCents:     money.ToCents(gross),
		CommissionPercentage: resolved.Percentage.StringFixed(4),
		CommissionCents:      money.ToCents(bd.Commission),
		FixedFeeCents:        money.ToCents(bd.FixedFee),
		ProcessorFeeCents:    money.ToCents(procFee),
		NetAmountCents:       money.ToCents(bd.Net),
		Currency:             currency,
		IdempotencyKey:       paidKey(order.ID),
		CreatedAt:            now,
	}

	created, err := r.txns.InsertIdempotent(txn)
	if err != nil {
		return nil, fmt.Errorf("record settlement for order %s: %w", order.ID, err)
	}
	if !created {
		existing, err := r.txns.GetByIdempotencyKey(txn.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("load existing settlement: %w", err)
		}
		r.logger.Info("settlement already recorded",
			zap.String("order_id", order.ID),
			zap.String("transaction_id", existing.ID))
		return existing, nil
	}

	r.logger.Info("settlement recorded",
		zap.String("order_id", order.ID),
		zap.String("transaction_id", txn.ID),
		zap.String("vendor_id", order.VendorID),
		zap.String("rate_source", string(resolved.Source)),
		zap.String("rate_variant", string(resolved.Variant)),
		zap.Int64("gross_cents", txn.GrossAmountCents),
		zap.Int64("commission_cents", txn.CommissionCents),
		zap.Int64("net_cents", txn.NetAmountCents))

	if bd.Shortfall.IsPositive() {
		if err := r.recordShortfall(order, bd.Shortfall, now); err != nil {
			return nil, err
		}
	}

	return txn, nil
}

// recordShortfall ledgers the platform loss absorbed when fees exceeded the
// order amount and net clamped to zero. Without this row the shortfall would
// be invisible to reconciliation.
func (r *Recorder) recordShortfall(order *domain.Order, shortfall decimal.Decimal, now time.Time) error {
	adj := &domain.FinancialTransaction{
		ID:                   "TXN-" + uuid.NewString(),
		Type:                 domain.TypeAdjustment,
		VendorID:             order.VendorID,
		OrderID:              order.ID,
		GrossAmountCents:     money.ToCents(shortfall),
		CommissionPercentage: "0.0000",
		Currency:             money.LedgerCurrency,
		IdempotencyKey:       paidKey(order.ID) + ":shortfall",
		CreatedAt:            now,
	}
	if _, err := r.txns.InsertIdempotent(adj); err != nil {
		return fmt.Errorf("record shortfall for order %s: %w", order.ID, err)
	}
	r.logger.Warn("fee shortfall absorbed",
		zap.String("order_id", order.ID),
		zap.String("shortfall", shortfall.StringFixed(2)))
	return nil
}

// RecordRefund appends a refund ledger row for a previously settled order,
// reversing the commission proportionally to the refunded share of the gross.
// refundRef identifies the refund event (e.g. the processor's refund id) and
// keys idempotency, so partial refunds each get one row and redeliveries get
// none.
func (r *Recorder) RecordRefund(orderID string, amount decimal.Decimal, refundRef string) (*domain.FinancialTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("refund amount must be positive, got %s", amount)
	}
	if refundRef == "" {
		return nil, fmt.Errorf("refund reference is required")
	}

	orig, err := r.txns.GetByIdempotencyKey(paidKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("no settlement recorded for order %s: %w", orderID, err)
	}

	origGross := money.FromCents(orig.GrossAmountCents)
	if amount.GreaterThan(origGross) {
		return nil, fmt.Errorf("refund %s exceeds order gross %s", amount, origGross)
	}

	// Pro-rate the original commission by the refunded share.
	var commissionBack decimal.Decimal
	if origGross.IsPositive() {
		ratio := amount.Div(origGross)
		commissionBack = money.Round2(money.FromCents(orig.CommissionCents).Mul(ratio))
	}
	netBack := amount.Sub(commissionBack)
	if netBack.IsNegative() {
		netBack = decimal.Zero
	}

	now := time.Now().UTC()
	txn := &domain.FinancialTransaction{
		ID:                   "TXN-" + uuid.NewString(),
		Type:                 domain.TypeRefund,
		VendorID:             orig.VendorID,
		OrderID:              orderID,
		GrossAmountCents:     money.ToCents(amount),
		CommissionPercentage: orig.CommissionPercentage,
		CommissionCents:      money.ToCents(commissionBack),
		NetAmountCents:       money.ToCents(netBack),
		Currency:             orig.Currency,
		IdempotencyKey:       fmt.Sprintf("order:%s:refund:%s", orderID, refundRef),
		CreatedAt:            now,
	}

	created, err := r.txns.InsertIdempotent(txn)
	if err != nil {
		return nil, fmt.Errorf("record refund for order %s: %w", orderID, err)
	}
	if !created {
		existing, err := r.txns.GetByIdempotencyKey(txn.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("load existing refund: %w", err)
		}
		return existing, nil
	}

	r.logger.Info("refund recorded",
		zap.String("order_id", orderID),
		zap.String("transaction_id", txn.ID),
		zap.Int64("amount_cents", txn.GrossAmountCents))
	return txn, nil
}
