package payout

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/repository"
)

type batcherFixture struct {
	batcher *Batcher
	txns    *repository.TransactionRepo
	seq     int
}

func newBatcherFixture(t *testing.T) *batcherFixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "payout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &batcherFixture{
		batcher: NewBatcher(repository.NewPayoutRepo(db), zap.NewNop()),
		txns:    repository.NewTransactionRepo(db),
	}
}

func (f *batcherFixture) seedTxn(t *testing.T, vendorID string, typ domain.TransactionType, netCents int64) *domain.FinancialTransaction {
	t.Helper()
	f.seq++
	txn := &domain.FinancialTransaction{
		ID:                   fmt.Sprintf("TXN-%04d", f.seq),
		Type:                 typ,
		VendorID:             vendorID,
		OrderID:              fmt.Sprintf("ORD-%04d", f.seq),
		GrossAmountCents:     netCents,
		CommissionPercentage: "0.0500",
		NetAmountCents:       netCents,
		Currency:             "usd",
		IdempotencyKey:       fmt.Sprintf("order:ORD-%04d:paid", f.seq),
		CreatedAt:            time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	created, err := f.txns.InsertIdempotent(txn)
	require.NoError(t, err)
	require.True(t, created)
	return txn
}

func TestCreateBatchClaimsAllUnsettled(t *testing.T) {
	f := newBatcherFixture(t)

	vendors := []string{"VND-1", "VND-2", "VND-3"}
	var total int64
	for i := 0; i < 10; i++ {
		net := int64(1000 + i*100)
		f.seedTxn(t, vendors[i%3], domain.TypeCommission, net)
		total += net
	}

	result, err := f.batcher.CreateBatch(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	batch := result.Batch
	assert.Equal(t, domain.BatchPending, batch.Status)
	assert.Equal(t, 3, batch.TotalVendors)
	assert.Equal(t, total, batch.TotalAmountCents)
	require.Len(t, result.Payouts, 3)

	var payoutSum int64
	txnCount := 0
	for _, p := range result.Payouts {
		assert.Equal(t, batch.ID, p.BatchID)
		payoutSum += p.AmountCents
		txnCount += p.TransactionCount
	}
	assert.Equal(t, total, payoutSum)
	assert.Equal(t, 10, txnCount)

	// Every claimed row carries the batch id and is settled.
	claimed, err := f.txns.ListByBatch(batch.ID)
	require.NoError(t, err)
	require.Len(t, claimed, 10)
	for _, txn := range claimed {
		assert.True(t, txn.IsSettled)
		assert.NotNil(t, txn.SettledAt)
		assert.False(t, txn.IsPaidToVendor)
	}
}

func TestCreateBatchEmpty(t *testing.T) {
	f := newBatcherFixture(t)

	_, err := f.batcher.CreateBatch(time.Time{})
	require.ErrorIs(t, err, domain.ErrBatchEmpty)

	// Nothing persisted for the aborted batch.
	batches, total, err := f.batcher.ListBatches(50, 1)
	require.NoError(t, err)
	assert.Empty(t, batches)
	assert.Zero(t, total)
}

func TestBatchesAreDisjoint(t *testing.T) {
	f := newBatcherFixture(t)

	for i := 0; i < 3; i++ {
		f.seedTxn(t, "VND-1", domain.TypeCommission, 1000)
	}
	first, err := f.batcher.CreateBatch(time.Time{})
	require.NoError(t, err)

	late1 := f.seedTxn(t, "VND-1", domain.TypeCommission, 500)
	late2 := f.seedTxn(t, "VND-2", domain.TypeCommission, 700)

	second, err := f.batcher.CreateBatch(time.Time{})
	require.NoError(t, err)

	firstClaims, err := f.txns.ListByBatch(first.Batch.ID)
	require.NoError(t, err)
	secondClaims, err := f.txns.ListByBatch(second.Batch.ID)
	require.NoError(t, err)

	assert.Len(t, firstClaims, 3)
	require.Len(t, secondClaims, 2)
	ids := map[string]bool{late1.ID: true, late2.ID: true}
	for _, txn := range secondClaims {
		assert.True(t, ids[txn.ID], "transaction %s was already claimed by the first batch", txn.ID)
	}
	assert.Equal(t, int64(1200), second.Batch.TotalAmountCents)
}

func TestRefundsReduceVendorPayout(t *testing.T) {
	f := newBatcherFixture(t)

	f.seedTxn(t, "VND-1", domain.TypeCommission, 1000)
	f.seedTxn(t, "VND-1", domain.TypeRefund, 200)
	f.seedTxn(t, "VND-1", domain.TypeChargeback, 100)
	// Adjustments carry platform loss, not vendor money.
	f.seedTxn(t, "VND-1", domain.TypeAdjustment, 0)

	result, err := f.batcher.CreateBatch(time.Time{})
	require.NoError(t, err)

	require.Len(t, result.Payouts, 1)
	assert.Equal(t, int64(700), result.Payouts[0].AmountCents)
	assert.Equal(t, 4, result.Payouts[0].TransactionCount)
}

func TestBatchLifecycle(t *testing.T) {
	f := newBatcherFixture(t)
	f.seedTxn(t, "VND-1", domain.TypeCommission, 1000)

	result, err := f.batcher.CreateBatch(time.Time{})
	require.NoError(t, err)
	batchID := result.Batch.ID

	// Completing a pending batch is rejected; it must be processing first.
	require.Error(t, f.batcher.Complete(batchID, true))

	require.NoError(t, f.batcher.MarkProcessing(batchID))
	require.Error(t, f.batcher.MarkProcessing(batchID))

	require.NoError(t, f.batcher.Complete(batchID, true))

	got, err := f.batcher.GetBatch(batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchProcessed, got.Batch.Status)
	require.NotNil(t, got.Batch.CompletedAt)
	require.Len(t, got.Payouts, 1)
	assert.Equal(t, domain.BatchProcessed, got.Payouts[0].Status)

	claimed, err := f.txns.ListByBatch(batchID)
	require.NoError(t, err)
	for _, txn := range claimed {
		assert.True(t, txn.IsPaidToVendor)
		assert.NotNil(t, txn.PaidAt)
	}
}

func TestBatchFailureKeepsClaims(t *testing.T) {
	f := newBatcherFixture(t)
	f.seedTxn(t, "VND-1", domain.TypeCommission, 1000)

	result, err := f.batcher.CreateBatch(time.Time{})
	require.NoError(t, err)
	batchID := result.Batch.ID

	require.NoError(t, f.batcher.MarkProcessing(batchID))
	require.NoError(t, f.batcher.Complete(batchID, false))

	got, err := f.batcher.GetBatch(batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchFailed, got.Batch.Status)

	// Claims are never rolled back: the transactions stay settled and
	// unpaid, and a new batch finds nothing to claim.
	claimed, err := f.txns.ListByBatch(batchID)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.True(t, claimed[0].IsSettled)
	assert.False(t, claimed[0].IsPaidToVendor)

	_, err = f.batcher.CreateBatch(time.Time{})
	assert.ErrorIs(t, err, domain.ErrBatchEmpty)
}

func TestGetBatchNotFound(t *testing.T) {
	f := newBatcherFixture(t)

	_, err := f.batcher.GetBatch("PB-missing")
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
}
