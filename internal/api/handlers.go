package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/lucasvmx/amazon-price-watch/internal/batch"
	"github.com/lucasvmx/amazon-price-watch/internal/database"
	"github.com/lucasvmx/amazon-price-watch/internal/models"
	"github.com/lucasvmx/amazon-price-watch/internal/scraper"
)

// Extractor resolves one ASIN into an extraction result.
type Extractor interface {
	ExtractProduct(ctx context.Context, asin string) (*models.ScrapedProduct, error)
}

// Store persists an extraction result, reporting whether it was appended
// to the history.
type Store interface {
	RecordObservation(ctx context.Context, product *models.ScrapedProduct) (bool, error)
}

// HistoryReader serves the persisted price history for an ASIN.
type HistoryReader interface {
	History(ctx context.Context, asin string, limit int) ([]*database.PriceObservation, error)
}

type Handlers struct {
	extractor Extractor
	store     Store
	history   HistoryReader
	batch     *batch.Runner
	logger    *slog.Logger

	mu        sync.Mutex
	lastBatch *batch.Result
}

func NewHandlers(extractor Extractor, store Store, history HistoryReader, runner *batch.Runner, logger *slog.Logger) *Handlers {
	return &Handlers{
		extractor: extractor,
		store:     store,
		history:   history,
		batch:     runner,
		logger:    logger,
	}
}

// RefreshResponse carries a fresh extraction plus whether it changed the
// stored history.
type RefreshResponse struct {
	Product  *models.ScrapedProduct `json:"product"`
	Recorded bool                   `json:"recorded"`
}

// RefreshProduct extracts a single product on demand and records the result.
func (h *Handlers) RefreshProduct(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")

	product, err := h.extractor.ExtractProduct(r.Context(), asin)
	if err != nil {
		h.respondExtractionError(w, asin, err)
		return
	}

	recorded := false
	if h.store != nil {
		recorded, err = h.store.RecordObservation(r.Context(), product)
		if err != nil {
			h.logger.Error("failed to record observation", "error", err, "asin", product.ASIN)
			h.respondError(w, http.StatusInternalServerError, "failed to record observation")
			return
		}
	}

	h.respondJSON(w, http.StatusOK, RefreshResponse{
		Product:  product,
		Recorded: recorded,
	})
}

// GetHistory returns the stored price history for an ASIN, newest first.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	asin, err := models.NormalizeASIN(chi.URLParam(r, "asin"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	observations, err := h.history.History(r.Context(), asin, limit)
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "asin", asin)
		h.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"asin":         asin,
		"observations": observations,
	})
}

// BatchRequest lists the ASINs to refresh sequentially.
type BatchRequest struct {
	ASINs []string `json:"asins"`
}

// BatchAcceptedResponse acknowledges a started batch run.
type BatchAcceptedResponse struct {
	Accepted int    `json:"accepted"`
	Message  string `json:"message"`
}

// StartBatch kicks off a background refresh of many ASINs. Only one run may
// be active at a time; a second request is rejected with 409.
func (h *Handlers) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ASINs) == 0 {
		h.respondError(w, http.StatusBadRequest, "asins is required")
		return
	}
	// The run outlives the request; it carries its own context. Start
	// acquires the single-flight guard before responding, so concurrent
	// requests cannot both be accepted.
	err := h.batch.Start(context.Background(), req.ASINs, nil, func(result *batch.Result, err error) {
		if err != nil {
			h.logger.Error("batch refresh failed", "error", err)
		}
		if result != nil {
			h.mu.Lock()
			h.lastBatch = result
			h.mu.Unlock()
		}
	})
	if errors.Is(err, batch.ErrAlreadyRunning) {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}

	h.respondJSON(w, http.StatusAccepted, BatchAcceptedResponse{
		Accepted: len(req.ASINs),
		Message:  "batch refresh started",
	})
}

// BatchStatusResponse reports whether a run is active and the tallies of the
// last finished run.
type BatchStatusResponse struct {
	Running    bool          `json:"running"`
	LastResult *batch.Result `json:"last_result,omitempty"`
}

// GetBatchStatus reports the state of the batch runner.
func (h *Handlers) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	last := h.lastBatch
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, BatchStatusResponse{
		Running:    h.batch.Running(),
		LastResult: last,
	})
}

func (h *Handlers) respondExtractionError(w http.ResponseWriter, asin string, err error) {
	var blocked *scraper.BlockedError
	var extraction *scraper.ExtractionError
	var navigation *scraper.NavigationError

	switch {
	case errors.Is(err, models.ErrInvalidASIN):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &blocked):
		h.logger.Warn("extraction blocked", "asin", asin, "indicator", blocked.Indicator)
		h.respondError(w, http.StatusServiceUnavailable, "extraction blocked by target site")
	case errors.As(err, &extraction), errors.As(err, &navigation):
		h.logger.Error("extraction failed", "error", err, "asin", asin)
		h.respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled):
		h.respondError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		h.logger.Error("extraction failed", "error", err, "asin", asin)
		h.respondError(w, http.StatusInternalServerError, "extraction failed")
	}
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
