// Command generate produces deterministic test fixtures: a seed order file
// for the server and sample rate-schedule files for the import endpoint.
//
//	go run ./testdata/generate
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/domain"
)

const (
	orderCount = 200
	outDir     = "testdata"
)

var vendors = []string{
	"VND-saffron-kitchen",
	"VND-taco-cartel",
	"VND-pho-republic",
	"VND-burger-collective",
	"VND-green-bowl",
}

func main() {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	orders := make([]domain.Order, 0, orderCount)
	for i := 0; i < orderCount; i++ {
		// Amounts between 4.00 and 120.00 in whole cents.
		cents := 400 + rng.Int63n(11601)
		status := domain.PaymentPending
		if rng.Float64() < 0.7 {
			status = domain.PaymentPaid
		}

		orders = append(orders, domain.Order{
			ID:            fmt.Sprintf("ORD-%05d", i+1),
			VendorID:      vendors[rng.Intn(len(vendors))],
			TotalAmount:   decimal.New(cents, -2),
			Currency:      "usd",
			PaymentStatus: status,
			CreatedAt:     base.Add(time.Duration(i) * 37 * time.Minute),
		})
	}

	if err := writeJSON(filepath.Join(outDir, "orders.json"), orders); err != nil {
		fmt.Fprintf(os.Stderr, "write orders: %v\n", err)
		os.Exit(1)
	}

	if err := writeRateSchedules(base); err != nil {
		fmt.Fprintf(os.Stderr, "write schedules: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d orders and sample rate schedules to %s/\n", len(orders), outDir)
}

func writeRateSchedules(base time.Time) error {
	csvSchedule := "vendor_id,percentage,fixed_fee,currency,min_order_amount,max_order_amount,effective_from,effective_until\n" +
		",0.0500,0.30,usd,,," + base.Format("2006-01-02") + ",\n" +
		vendors[0] + ",0.0450,0.30,usd,,," + base.Format("2006-01-02") + ",\n" +
		vendors[1] + ",0.0600,0.25,usd,25.00,," + base.Format("2006-01-02") + ",\n"

	if err := os.WriteFile(filepath.Join(outDir, "rates.csv"), []byte(csvSchedule), 0o644); err != nil {
		return err
	}

	promoEnd := base.AddDate(0, 3, 0)
	jsonSchedule := map[string]any{
		"schedule_date": base.Format("2006-01-02"),
		"rates": []map[string]any{
			{
				"vendor_id":        vendors[2],
				"percentage":       "0.0500",
				"fixed_fee":        "0.30",
				"currency":         "usd",
				"promo_percentage": "0.0300",
				"promo_fixed_fee":  "0.30",
				"promo_end_date":   promoEnd.Format("2006-01-02"),
				"effective_from":   base.Format("2006-01-02"),
			},
		},
	}
	return writeJSON(filepath.Join(outDir, "rates.json"), jsonSchedule)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
