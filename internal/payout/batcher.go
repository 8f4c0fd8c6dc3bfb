package payout

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/repository"
)

// Batcher groups unsettled ledger rows into periodic payout batches. The
// claim itself is a single conditional update inside one database
// transaction (see PayoutRepo.ClaimUnsettled), so concurrent runs partition
// the unsettled set without overlap.
type Batcher struct {
	repo   *repository.PayoutRepo
	logger *zap.Logger
}

func NewBatcher(repo *repository.PayoutRepo, logger *zap.Logger) *Batcher {
	return &Batcher{repo: repo, logger: logger}
}

// BatchResult pairs a created batch with its vendor payouts.
type BatchResult struct {
	Batch   *domain.PayoutBatch   `json:"batch"`
	Payouts []domain.VendorPayout `json:"payouts"`
}

// CreateBatch claims every currently unsettled transaction into a new batch,
// one VendorPayout per vendor. Returns domain.ErrBatchEmpty when there is
// nothing to claim; in that case nothing is persisted.
func (b *Batcher) CreateBatch(payoutDate time.Time) (*BatchResult, error) {
	if payoutDate.IsZero() {
		payoutDate = time.Now().UTC()
	}

	batch := &domain.PayoutBatch{
		ID:         "PB-" + uuid.NewString(),
		PayoutDate: payoutDate,
		Status:     domain.BatchPending,
		CreatedAt:  time.Now().UTC(),
	}

	payouts, err := b.repo.ClaimUnsettled(batch)
	if err != nil {
		return nil, fmt.Errorf("create payout batch: %w", err)
	}

	b.logger.Info("payout batch created",
		zap.String("batch_id", batch.ID),
		zap.Int("vendors", batch.TotalVendors),
		zap.Int64("total_cents", batch.TotalAmountCents))

	return &BatchResult{Batch: batch, Payouts: payouts}, nil
}

// MarkProcessing moves a pending batch into processing when payout execution
// begins.
func (b *Batcher) MarkProcessing(batchID string) error {
	batch, err := b.repo.GetBatch(batchID)
	if err != nil {
		return err
	}
	if batch.Status != domain.BatchPending {
		return fmt.Errorf("batch %s is %s, expected %s", batchID, batch.Status, domain.BatchPending)
	}
	return b.repo.UpdateBatchStatus(batchID, domain.BatchProcessing, time.Now().UTC())
}

// Complete finishes a processing batch. succeeded=true marks the batch
// processed and flips is_paid_to_vendor on its transactions; succeeded=false
// marks it failed. Either way the claimed transactions stay settled;
// failures are resolved by re-issuing payouts, never by re-batching.
func (b *Batcher) Complete(batchID string, succeeded bool) error {
	batch, err := b.repo.GetBatch(batchID)
	if err != nil {
		return err
	}
	if batch.Status != domain.BatchProcessing {
		return fmt.Errorf("batch %s is %s, expected %s", batchID, batch.Status, domain.BatchProcessing)
	}

	now := time.Now().UTC()
	status := domain.BatchProcessed
	if !succeeded {
		status = domain.BatchFailed
	}
	if err := b.repo.UpdateBatchStatus(batchID, status, now); err != nil {
		return err
	}

	if succeeded {
		flipped, err := b.repo.MarkPaidOut(batchID, now)
		if err != nil {
			return err
		}
		b.logger.Info("payout batch processed",
			zap.String("batch_id", batchID),
			zap.Int64("transactions_paid", flipped))
	} else {
		b.logger.Warn("payout batch failed",
			zap.String("batch_id", batchID))
	}
	return nil
}

// GetBatch returns a batch with its vendor payouts.
func (b *Batcher) GetBatch(batchID string) (*BatchResult, error) {
	batch, err := b.repo.GetBatch(batchID)
	if err != nil {
		return nil, err
	}
	payouts, err := b.repo.ListPayouts(batchID)
	if err != nil {
		return nil, err
	}
	return &BatchResult{Batch: batch, Payouts: payouts}, nil
}

// ListBatches returns batches newest first.
func (b *Batcher) ListBatches(limit, page int) ([]domain.PayoutBatch, int, error) {
	return b.repo.ListBatches(limit, page)
}
