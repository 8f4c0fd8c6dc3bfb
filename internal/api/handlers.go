package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/payout"
	"github.com/feastly/settlement/internal/rates"
	"github.com/feastly/settlement/internal/repository"
	"github.com/feastly/settlement/internal/settlement"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	registry      *rates.Registry
	importer      *rates.Importer
	recorder      *settlement.Recorder
	batcher       *payout.Batcher
	txnRepo       *repository.TransactionRepo
	webhookSecret string
	logger        *zap.Logger
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidRate):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrBatchNotFound),
		errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBatchEmpty):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// actorFromRequest builds the explicit authorization context from the
// identity headers the upstream gateway sets after authenticating the
// caller. Authentication itself is outside this service.
func actorFromRequest(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Role: domain.Role(r.Header.Get("X-Actor-Role")),
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Rates ---

func (h *Handlers) CreateRate(w http.ResponseWriter, r *http.Request) {
	var in rates.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	rate, err := h.registry.Create(actorFromRequest(r), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rate)
}

func (h *Handlers) DeactivateRate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Deactivate(actorFromRequest(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rate_id": id, "status": "deactivated"})
}

func (h *Handlers) ResolveRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vendorID := q.Get("vendor_id")
	if vendorID == "" {
		writeError(w, http.StatusBadRequest, "vendor_id is required")
		return
	}

	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	var asOf time.Time
	if t := parseTime(q.Get("as_of")); t != nil {
		asOf = *t
	}

	resolved, err := h.registry.Resolve(vendorID, amount, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (h *Handlers) ImportRates(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	format := r.FormValue("format")
	if format == "" {
		writeError(w, http.StatusBadRequest, "format is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.importer.Import(actorFromRequest(r), data, format)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrInvalidRate) {
			writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Payment events ---

func (h *Handlers) OrderPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txn, err := h.recorder.HandlePaymentConfirmed(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *Handlers) OrderRefund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Amount    decimal.Decimal `json:"amount"`
		RefundRef string          `json:"refund_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	txn, err := h.recorder.RecordRefund(id, body.Amount, body.RefundRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// --- Ledger ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.TransactionFilter{
		VendorID: q.Get("vendor_id"),
		Type:     q.Get("type"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}
	if s := q.Get("settled"); s != "" {
		settled := s == "true" || s == "1"
		filter.Settled = &settled
	}

	txns, total, err := h.txnRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
	})
}

func (h *Handlers) VendorBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, err := h.txnRepo.GetVendorBalance(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.txnRepo.GetLedgerStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Payouts ---

func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PayoutDate string `json:"payout_date"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
	}

	var payoutDate time.Time
	if t := parseTime(body.PayoutDate); t != nil {
		payoutDate = *t
	}

	result, err := h.batcher.CreateBatch(payoutDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	batches, total, err := h.batcher.ListBatches(
		parseIntDefault(q.Get("limit"), 50),
		parseIntDefault(q.Get("page"), 1),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"total":   total,
	})
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.batcher.GetBatch(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) BatchProcessing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.batcher.MarkProcessing(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"batch_id": id, "status": string(domain.BatchProcessing)})
}

func (h *Handlers) BatchComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Succeeded *bool `json:"succeeded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Succeeded == nil {
		writeError(w, http.StatusBadRequest, "succeeded is required")
		return
	}

	if err := h.batcher.Complete(id, *body.Succeeded); err != nil {
		writeDomainError(w, err)
		return
	}

	status := domain.BatchProcessed
	if !*body.Succeeded {
		status = domain.BatchFailed
	}
	writeJSON(w, http.StatusOK, map[string]string{"batch_id": id, "status": string(status)})
}
