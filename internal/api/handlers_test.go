package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/money"
	"github.com/feastly/settlement/internal/payout"
	"github.com/feastly/settlement/internal/rates"
	"github.com/feastly/settlement/internal/repository"
	"github.com/feastly/settlement/internal/settlement"
)

const testWebhookSecret = "whsec_test_secret"

type apiFixture struct {
	handler http.Handler
	orders  *repository.OrderRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	rateRepo := repository.NewRateRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	txnRepo := repository.NewTransactionRepo(db)
	payoutRepo := repository.NewPayoutRepo(db)

	registry := rates.NewRegistry(rateRepo, logger)
	importer := rates.NewImporter(rateRepo, logger)
	recorder := settlement.NewRecorder(orderRepo, txnRepo, registry,
		settlement.NewCardFeeEstimator(), logger)
	batcher := payout.NewBatcher(payoutRepo, logger)

	return &apiFixture{
		handler: NewRouter(registry, importer, recorder, batcher, txnRepo,
			testWebhookSecret, logger),
		orders: orderRepo,
	}
}

func (f *apiFixture) seedOrder(t *testing.T, id, vendorID, amount string) {
	t.Helper()
	require.NoError(t, f.orders.Insert(&domain.Order{
		ID:            id,
		VendorID:      vendorID,
		TotalAmount:   money.MustParse(amount),
		Currency:      "usd",
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}))
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, asAdmin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if asAdmin {
		req.Header.Set("X-Actor-Id", "ops-1")
		req.Header.Set("X-Actor-Role", "admin")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateRateRequiresAdmin(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rates", map[string]any{
		"percentage": "0.05",
		"fixed_fee":  "0.30",
	}, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAndResolveRate(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rates", map[string]any{
		"vendor_id":      "VND-1",
		"percentage":     "0.04",
		"fixed_fee":      "0.30",
		"effective_from": "2026-01-01T00:00:00Z",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet,
		"/api/v1/rates/resolve?vendor_id=VND-1&amount=20.00&as_of=2026-06-01", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "vendor", body["source"])
	assert.Equal(t, "0.04", body["percentage"])
}

func TestCreateRateRejectsInvalid(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rates", map[string]any{
		"percentage": "1.50",
		"fixed_fee":  "0.30",
	}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestResolveRateMissingVendor(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/rates/resolve?amount=20.00", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportRatesEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	csvData := "vendor_id,percentage,fixed_fee,currency,min_order_amount,max_order_amount,effective_from,effective_until\n" +
		"VND-1,0.0450,0.30,usd,,,2026-01-01,\n"

	var buf bytes.Buffer
	boundary := "testboundary"
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Disposition: form-data; name=\"format\"\r\n\r\ncsv\r\n")
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"rates.csv\"\r\n")
	buf.WriteString("Content-Type: text/csv\r\n\r\n")
	buf.WriteString(csvData)
	buf.WriteString("\r\n--" + boundary + "--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rates/import", &buf)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("X-Actor-Id", "ops-1")
	req.Header.Set("X-Actor-Role", "admin")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["rates_imported"])
}

func TestOrderPaidEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedOrder(t, "ORD-1", "VND-1", "20.00")

	rec := f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/paid", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2000), body["gross_amount_cents"])
	assert.Equal(t, float64(1870), body["net_amount_cents"])
	txnID := body["id"]

	// Redelivery returns the same transaction.
	rec = f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/paid", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, txnID, decodeBody(t, rec)["id"])

	rec = f.do(t, http.MethodPost, "/api/v1/orders/ORD-missing/paid", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderRefundEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedOrder(t, "ORD-1", "VND-1", "20.00")

	rec := f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/paid", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/refund", map[string]any{
		"amount":     "10.00",
		"refund_ref": "re_1",
	}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "refund", body["type"])
	assert.Equal(t, float64(1000), body["gross_amount_cents"])
}

func TestTransactionListAndBalance(t *testing.T) {
	f := newAPIFixture(t)
	f.seedOrder(t, "ORD-1", "VND-1", "20.00")
	f.seedOrder(t, "ORD-2", "VND-1", "50.00")

	for _, id := range []string{"ORD-1", "ORD-2"} {
		rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/paid", id), nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/transactions?vendor_id=VND-1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["total"])

	rec = f.do(t, http.MethodGet, "/api/v1/vendors/VND-1/balance", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	// 18.70 + 47.20 unsettled.
	assert.Equal(t, float64(6590), body["unsettled_cents"])

	rec = f.do(t, http.MethodGet, "/api/v1/dashboard", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["total"])
}

func TestPayoutBatchEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.seedOrder(t, "ORD-1", "VND-1", "20.00")

	// Empty ledger conflicts.
	rec := f.do(t, http.MethodPost, "/api/v1/payouts/batches", nil, false)
	assert.Equal(t, http.StatusConflict, rec.Code)

	paidRec := f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/paid", nil, false)
	require.Equal(t, http.StatusOK, paidRec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/payouts/batches", nil, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	batch := body["batch"].(map[string]any)
	batchID := batch["id"].(string)
	assert.Equal(t, "pending", batch["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/payouts/batches", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["total"])

	rec = f.do(t, http.MethodPost, "/api/v1/payouts/batches/"+batchID+"/processing", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/payouts/batches/"+batchID+"/complete",
		map[string]any{"succeeded": true}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/payouts/batches/"+batchID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "processed", got["batch"].(map[string]any)["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/payouts/batches/PB-missing", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchCompleteRequiresSucceededField(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/payouts/batches/PB-1/complete",
		map[string]any{}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "succeeded")
}

func TestActorFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-Id", "ops-1")
	req.Header.Set("X-Actor-Role", "admin")

	actor := actorFromRequest(req)
	assert.Equal(t, "ops-1", actor.ID)
	assert.True(t, actor.IsAdmin())

	anon := actorFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, anon.IsAdmin())
}

func TestParseTime(t *testing.T) {
	assert.Nil(t, parseTime(""))
	assert.Nil(t, parseTime("not-a-date"))

	got := parseTime("2026-06-01")
	require.NotNil(t, got)
	assert.Equal(t, time.June, got.Month())

	got = parseTime("2026-06-01T12:30:00Z")
	require.NotNil(t, got)
	assert.Equal(t, 12, got.Hour())
}

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrInvalidRate, http.StatusUnprocessableEntity},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{domain.ErrBatchNotFound, http.StatusNotFound},
		{domain.ErrBatchEmpty, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.True(t, strings.Contains(rec.Header().Get("Content-Type"), "application/json"))
	}
}
