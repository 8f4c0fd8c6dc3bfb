package rates

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/domain"
)

// ParseScheduleCSV parses the CSV rate-schedule export format.
//
// Expected header:
//
//	vendor_id,percentage,fixed_fee,currency,min_order_amount,max_order_amount,effective_from,effective_until
//
// vendor_id empty means a global default; min/max/effective_until may be
// empty for open-ended values.
func ParseScheduleCSV(data []byte) ([]domain.CommissionRate, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 8 {
		return nil, fmt.Errorf("expected 8 columns, got %d", len(header))
	}

	var parsed []domain.CommissionRate
	lineNum := 1

	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if len(row) < 8 {
			continue
		}

		pct, err := decimal.NewFromString(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d percentage: %w", lineNum, err)
		}
		fee, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d fixed_fee: %w", lineNum, err)
		}

		rate := domain.CommissionRate{
			VendorID:   strings.TrimSpace(row[0]),
			Percentage: pct,
			FixedFee:   fee,
			Currency:   strings.ToLower(strings.TrimSpace(row[3])),
		}

		if rate.MinOrderAmount, err = parseOptionalDecimal(row[4]); err != nil {
			return nil, fmt.Errorf("line %d min_order_amount: %w", lineNum, err)
		}
		if rate.MaxOrderAmount, err = parseOptionalDecimal(row[5]); err != nil {
			return nil, fmt.Errorf("line %d max_order_amount: %w", lineNum, err)
		}

		if from := strings.TrimSpace(row[6]); from != "" {
			t, err := parseScheduleDate(from)
			if err != nil {
				return nil, fmt.Errorf("line %d effective_from: %w", lineNum, err)
			}
			rate.EffectiveFrom = t
		}
		if until := strings.TrimSpace(row[7]); until != "" {
			t, err := parseScheduleDate(until)
			if err != nil {
				return nil, fmt.Errorf("line %d effective_until: %w", lineNum, err)
			}
			rate.EffectiveUntil = &t
		}

		parsed = append(parsed, rate)
	}

	return parsed, nil
}

func parseOptionalDecimal(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseScheduleDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t, nil
}
