package rates

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/domain"
)

// scheduleFile is the top-level JSON rate-schedule structure.
type scheduleFile struct {
	ScheduleDate string          `json:"schedule_date"`
	Rates        []scheduleEntry `json:"rates"`
}

type scheduleEntry struct {
	VendorID        string           `json:"vendor_id"`
	Percentage      decimal.Decimal  `json:"percentage"`
	FixedFee        decimal.Decimal  `json:"fixed_fee"`
	Currency        string           `json:"currency"`
	PromoPercentage *decimal.Decimal `json:"promo_percentage"`
	PromoFixedFee   *decimal.Decimal `json:"promo_fixed_fee"`
	PromoEndDate    string           `json:"promo_end_date"`
	MinOrderAmount  *decimal.Decimal `json:"min_order_amount"`
	MaxOrderAmount  *decimal.Decimal `json:"max_order_amount"`
	EffectiveFrom   string           `json:"effective_from"`
	EffectiveUntil  string           `json:"effective_until"`
}

// ParseScheduleJSON parses the JSON rate-schedule export format, which unlike
// the CSV one carries promotional sub-rates.
func ParseScheduleJSON(data []byte) ([]domain.CommissionRate, error) {
	var file scheduleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	var parsed []domain.CommissionRate
	for i, entry := range file.Rates {
		rate := domain.CommissionRate{
			VendorID:        entry.VendorID,
			Percentage:      entry.Percentage,
			FixedFee:        entry.FixedFee,
			Currency:        strings.ToLower(entry.Currency),
			PromoPercentage: entry.PromoPercentage,
			PromoFixedFee:   entry.PromoFixedFee,
			MinOrderAmount:  entry.MinOrderAmount,
			MaxOrderAmount:  entry.MaxOrderAmount,
		}

		var err error
		if rate.PromoEndDate, err = parseOptionalDate(entry.PromoEndDate); err != nil {
			return nil, fmt.Errorf("rate %d promo_end_date: %w", i, err)
		}
		if entry.EffectiveFrom != "" {
			t, err := parseScheduleDate(entry.EffectiveFrom)
			if err != nil {
				return nil, fmt.Errorf("rate %d effective_from: %w", i, err)
			}
			rate.EffectiveFrom = t
		}
		if rate.EffectiveUntil, err = parseOptionalDate(entry.EffectiveUntil); err != nil {
			return nil, fmt.Errorf("rate %d effective_until: %w", i, err)
		}

		parsed = append(parsed, rate)
	}

	return parsed, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseScheduleDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
