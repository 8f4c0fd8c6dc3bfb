package rates

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/money"
	"github.com/feastly/settlement/internal/repository"
)

// Platform fallback applied when no configured rate matches. Resolution with
// the fallback never fails, even against an empty registry.
var (
	DefaultPercentage = money.MustParse("0.05")
	DefaultFixedFee   = money.MustParse("0.30")
)

// Registry resolves which commission rate applies to an order. Read paths are
// side-effect-free and safe to call concurrently.
type Registry struct {
	repo   *repository.RateRepo
	logger *zap.Logger

	defaultPct decimal.Decimal
	defaultFee decimal.Decimal
}

// Option tweaks registry construction.
type Option func(*Registry)

// WithDefaultRate overrides the platform fallback percentage and fixed fee.
func WithDefaultRate(pct, fee decimal.Decimal) Option {
	return func(r *Registry) {
		r.defaultPct = pct
		r.defaultFee = fee
	}
}

func NewRegistry(repo *repository.RateRepo, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		repo:       repo,
		logger:     logger,
		defaultPct: DefaultPercentage,
		defaultFee: DefaultFixedFee,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve selects the single applicable rate for a vendor and order amount at
// asOf (zero asOf means now). Candidates are filtered and ordered explicitly:
// vendor-specific beats global, then latest effective_from wins. When the
// winner has an active promotional schedule the promotional percentage and
// fixed fee apply. An empty candidate set falls back to the platform default.
func (r *Registry) Resolve(vendorID string, orderAmount decimal.Decimal, asOf time.Time) (domain.ResolvedRate, error) {
	if orderAmount.IsNegative() {
		return domain.ResolvedRate{}, fmt.Errorf("order amount must be non-negative, got %s", orderAmount)
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	candidates, err := r.repo.ListCandidates(vendorID)
	if err != nil {
		return domain.ResolvedRate{}, fmt.Errorf("list candidates: %w", err)
	}

	applicable := candidates[:0]
	for _, c := range candidates {
		if c.EffectiveAt(asOf) && c.CoversAmount(orderAmount) {
			applicable = append(applicable, c)
		}
	}

	if len(applicable) == 0 {
		return domain.ResolvedRate{
			Source:     domain.RateSourceDefault,
			Variant:    domain.RateVariantBase,
			Percentage: r.defaultPct,
			FixedFee:   r.defaultFee,
			Currency:   money.LedgerCurrency,
		}, nil
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		a, b := applicable[i], applicable[j]
		aVendor := a.VendorID != ""
		bVendor := b.VendorID != ""
		if aVendor != bVendor {
			return aVendor
		}
		if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
			return a.EffectiveFrom.After(b.EffectiveFrom)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	winner := applicable[0]
	if len(applicable) > 1 {
		second := applicable[1]
		if (winner.VendorID != "") == (second.VendorID != "") &&
			winner.EffectiveFrom.Equal(second.EffectiveFrom) {
			// Tie on (specificity, effective_from) points at a registry data
			// bug; the sort still picks deterministically by creation recency.
			r.logger.Warn("ambiguous rate resolution",
				zap.String("winner", winner.ID),
				zap.String("runner_up", second.ID),
				zap.String("vendor_id", vendorID))
		}
	}

	resolved := domain.ResolvedRate{
		RateID:     winner.ID,
		Source:     domain.RateSourceGlobal,
		Variant:    domain.RateVariantBase,
		Percentage: winner.Percentage,
		FixedFee:   winner.FixedFee,
		Currency:   winner.Currency,
	}
	if winner.VendorID != "" {
		resolved.Source = domain.RateSourceVendor
	}
	if winner.PromoActiveAt(asOf) {
		resolved.Variant = domain.RateVariantPromotional
		resolved.Percentage = *winner.PromoPercentage
		if winner.PromoFixedFee != nil {
			resolved.FixedFee = *winner.PromoFixedFee
		}
	}

	return resolved, nil
}

// CreateInput carries the administrative fields for a new rate.
type CreateInput struct {
	VendorID        string           `json:"vendor_id"`
	Percentage      decimal.Decimal  `json:"percentage"`
	FixedFee        decimal.Decimal  `json:"fixed_fee"`
	Currency        string           `json:"currency"`
	PromoPercentage *decimal.Decimal `json:"promo_percentage"`
	PromoFixedFee   *decimal.Decimal `json:"promo_fixed_fee"`
	PromoEndDate    *time.Time       `json:"promo_end_date"`
	MinOrderAmount  *decimal.Decimal `json:"min_order_amount"`
	MaxOrderAmount  *decimal.Decimal `json:"max_order_amount"`
	EffectiveFrom   time.Time        `json:"effective_from"`
	EffectiveUntil  *time.Time       `json:"effective_until"`
}

// Create validates and persists a new commission rate. Requires an admin
// actor; validation failures surface domain.ErrInvalidRate before anything
// reaches storage.
func (r *Registry) Create(actor domain.Actor, in CreateInput) (*domain.CommissionRate, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}

	now := time.Now().UTC()
	rate := &domain.CommissionRate{
		ID:              "RATE-" + uuid.NewString(),
		VendorID:        in.VendorID,
		Percentage:      in.Percentage,
		FixedFee:        in.FixedFee,
		Currency:        in.Currency,
		PromoPercentage: in.PromoPercentage,
		PromoFixedFee:   in.PromoFixedFee,
		PromoEndDate:    in.PromoEndDate,
		MinOrderAmount:  in.MinOrderAmount,
		MaxOrderAmount:  in.MaxOrderAmount,
		EffectiveFrom:   in.EffectiveFrom,
		EffectiveUntil:  in.EffectiveUntil,
		IsActive:        true,
		CreatedAt:       now,
	}
	if rate.Currency == "" {
		rate.Currency = money.LedgerCurrency
	}
	if rate.EffectiveFrom.IsZero() {
		rate.EffectiveFrom = now
	}

	if !money.Supported(rate.Currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", domain.ErrInvalidRate, rate.Currency)
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	if err := r.repo.Insert(rate); err != nil {
		return nil, fmt.Errorf("persist rate: %w", err)
	}

	r.logger.Info("commission rate created",
		zap.String("rate_id", rate.ID),
		zap.String("vendor_id", rate.VendorID),
		zap.String("percentage", rate.Percentage.StringFixed(4)),
		zap.String("actor", actor.ID))
	return rate, nil
}

// Deactivate turns a rate off. Historical pricing stays immutable: the rate
// row keeps its fields and any settled transactions keep referencing it.
func (r *Registry) Deactivate(actor domain.Actor, rateID string) error {
	if !actor.IsAdmin() {
		return domain.ErrUnauthorized
	}
	if err := r.repo.Deactivate(rateID); err != nil {
		return fmt.Errorf("deactivate rate %s: %w", rateID, err)
	}
	r.logger.Info("commission rate deactivated",
		zap.String("rate_id", rateID), zap.String("actor", actor.ID))
	return nil
}
