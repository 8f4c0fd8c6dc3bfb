package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/api"
	"github.com/feastly/settlement/internal/config"
	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/logging"
	"github.com/feastly/settlement/internal/payout"
	"github.com/feastly/settlement/internal/rates"
	"github.com/feastly/settlement/internal/repository"
	"github.com/feastly/settlement/internal/settlement"
)

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("initializing database", zap.String("path", cfg.DBPath))
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("init db", zap.Error(err))
	}
	defer db.Close()

	// Repositories.
	rateRepo := repository.NewRateRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	txnRepo := repository.NewTransactionRepo(db)
	payoutRepo := repository.NewPayoutRepo(db)

	// Services.
	registry := rates.NewRegistry(rateRepo, logger,
		rates.WithDefaultRate(cfg.DefaultCommissionPct, cfg.DefaultFixedFee))
	importer := rates.NewImporter(rateRepo, logger)
	recorder := settlement.NewRecorder(orderRepo, txnRepo, registry,
		settlement.NewCardFeeEstimator(), logger)
	batcher := payout.NewBatcher(payoutRepo, logger)

	// Seed orders if the projection is empty.
	count, err := orderRepo.Count()
	if err != nil {
		logger.Fatal("count orders", zap.Error(err))
	}
	if count == 0 {
		if err := seedOrders(orderRepo, cfg.SeedPath, logger); err != nil {
			logger.Warn("seed orders", zap.Error(err))
		}
	} else {
		logger.Info("order projection already populated", zap.Int("orders", count))
	}

	router := api.NewRouter(registry, importer, recorder, batcher, txnRepo,
		cfg.StripeWebhookSecret, logger)

	logger.Info("feastly settlement engine listening",
		zap.String("addr", "http://localhost:"+cfg.Port),
		zap.String("api_base", "/api/v1"))

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func seedOrders(repo *repository.OrderRepo, seedPath string, logger *zap.Logger) error {
	// Try multiple possible locations for the seed file.
	candidates := []string{seedPath}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, seedPath),
			filepath.Join(dir, "..", "..", seedPath),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			logger.Info("loaded seed orders", zap.String("path", path))
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("no seed file found: %w", loadErr)
	}

	var orders []domain.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return fmt.Errorf("unmarshal orders: %w", err)
	}

	inserted, err := repo.BulkInsert(orders)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	logger.Info("seeded orders", zap.Int("inserted", inserted), zap.Int("in_file", len(orders)))
	return nil
}
