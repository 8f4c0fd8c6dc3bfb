package rates

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/repository"
)

// ImportResult is returned from a successful rate-schedule import.
type ImportResult struct {
	ImportID          string `json:"import_id"`
	RatesImported     int    `json:"rates_imported"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}

// Importer loads bulk rate schedules (admin tooling exports) into the
// registry.
type Importer struct {
	repo   *repository.RateRepo
	logger *zap.Logger
}

func NewImporter(repo *repository.RateRepo, logger *zap.Logger) *Importer {
	return &Importer{repo: repo, logger: logger}
}

// Import parses a rate-schedule file and stores the rates. Re-uploading the
// same file is a no-op thanks to the file-hash idempotency check. Every rate
// in the file must pass validation; one bad row rejects the whole file so a
// half-applied schedule never goes live.
//
// format must be one of: csv, json
func (s *Importer) Import(actor domain.Actor, data []byte, format string) (*ImportResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.repo.ImportExistsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		return &ImportResult{ImportID: "already-imported"}, nil
	}

	var parsed []domain.CommissionRate
	switch format {
	case "csv":
		parsed, err = ParseScheduleCSV(data)
	case "json":
		parsed, err = ParseScheduleJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	now := time.Now().UTC()
	for i := range parsed {
		rate := &parsed[i]
		rate.ID = "RATE-" + uuid.NewString()
		rate.IsActive = true
		rate.CreatedAt = now
		if rate.EffectiveFrom.IsZero() {
			rate.EffectiveFrom = now
		}
		if err := rate.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	importID := fmt.Sprintf("IMP-%d", now.UnixNano())
	if err := s.repo.InsertImport(importID, hash, format, len(parsed), now); err != nil {
		return nil, fmt.Errorf("insert import: %w", err)
	}

	inserted, err := s.repo.BulkInsert(parsed)
	if err != nil {
		return nil, fmt.Errorf("insert rates: %w", err)
	}

	s.logger.Info("rate schedule imported",
		zap.String("import_id", importID),
		zap.Int("rates", len(parsed)),
		zap.Int("inserted", inserted),
		zap.String("actor", actor.ID))

	return &ImportResult{
		ImportID:          importID,
		RatesImported:     inserted,
		DuplicatesSkipped: len(parsed) - inserted,
	}, nil
}
