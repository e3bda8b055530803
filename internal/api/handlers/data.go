package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/helios/internal/marketdata"
	"github.com/wonny/helios/pkg/logger"
)

// DataHandler handles market data API endpoints
// ⭐ SSOT: 데이터 API 핸들러는 이 구조체에서만
type DataHandler struct {
	marketRepo *marketdata.Repository
	logger     *logger.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(marketRepo *marketdata.Repository, log *logger.Logger) *DataHandler {
	return &DataHandler{
		marketRepo: marketRepo,
		logger:     log,
	}
}

// GetSymbols returns every symbol with price history
// GET /api/data/symbols
func (h *DataHandler) GetSymbols(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	symbols, err := h.marketRepo.Symbols(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list symbols")
		respondError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(symbols),
		"symbols": symbols,
	})
}

// BarRequest is one daily close in an ingestion request
type BarRequest struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Close  float64 `json:"close"`
}

// IngestRequest represents a price ingestion request
type IngestRequest struct {
	Bars []BarRequest `json:"bars"`
}

// Ingest upserts daily closes
// POST /api/data/prices
func (h *DataHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Bars) == 0 {
		respondError(w, http.StatusBadRequest, "No bars in request")
		return
	}

	bars := make([]marketdata.Bar, 0, len(req.Bars))
	for _, b := range req.Bars {
		if b.Symbol == "" {
			respondError(w, http.StatusBadRequest, "Bar is missing 'symbol'")
			return
		}
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid bar date format (expected YYYY-MM-DD)")
			return
		}
		if b.Close <= 0 {
			respondError(w, http.StatusBadRequest, "Bar close must be positive")
			return
		}
		bars = append(bars, marketdata.Bar{Symbol: b.Symbol, Date: date, Close: b.Close})
	}

	if err := h.marketRepo.SaveBars(ctx, bars); err != nil {
		h.logger.WithError(err).Error("Failed to save bars")
		respondError(w, http.StatusInternalServerError, "Failed to save bars")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"bars": len(bars),
	}).Info("Price bars ingested")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"saved":  len(bars),
	})
}
