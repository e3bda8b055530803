package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/helios/internal/backtest"
	"github.com/wonny/helios/internal/backtestconfig"
	"github.com/wonny/helios/internal/marketdata"
	"github.com/wonny/helios/internal/results"
	"github.com/wonny/helios/internal/timeseries"
	appconfig "github.com/wonny/helios/pkg/config"
	"github.com/wonny/helios/pkg/logger"
)

// BacktestHandler handles backtest API endpoints
// ⭐ SSOT: 백테스트 API 핸들러는 이 구조체에서만
type BacktestHandler struct {
	marketRepo *marketdata.Repository
	store      *results.Store
	env        *appconfig.Config
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewBacktestHandler creates a new backtest handler. Runs are
// synchronous and CPU-bound, so the run endpoint is rate limited from
// the environment configuration.
func NewBacktestHandler(
	marketRepo *marketdata.Repository,
	store *results.Store,
	env *appconfig.Config,
	log *logger.Logger,
) *BacktestHandler {
	perMinute := env.API.RunRatePerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	burst := env.API.RunBurst
	if burst <= 0 {
		burst = 1
	}

	return &BacktestHandler{
		marketRepo: marketRepo,
		store:      store,
		env:        env,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		logger:     log,
	}
}

// RunRequest represents a backtest run request
type RunRequest struct {
	Config backtestconfig.Config `json:"config"`
	// Symbols restricts the universe; empty means every symbol with
	// price history
	Symbols []string `json:"symbols,omitempty"`
}

// RunResponse represents a completed backtest run
type RunResponse struct {
	ID      int64            `json:"id"`
	RunID   string           `json:"run_id"`
	Summary *results.Summary `json:"summary"`
}

// Run executes a backtest and persists the result
// POST /api/backtests
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, "Too many backtest runs, try again later")
		return
	}

	// Parse request
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg := &req.Config
	if err := backtestconfig.Validate(cfg); err != nil {
		var verr backtestconfig.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid backtest configuration")
		return
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		var err error
		symbols, err = h.marketRepo.Symbols(ctx)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list symbols")
			respondError(w, http.StatusInternalServerError, "Failed to list symbols")
			return
		}
	}
	if len(symbols) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "No symbols with price history")
		return
	}

	// Load extra history in front of the window so the lookback is
	// warm on the first trading day
	from := cfg.Simulation.Start().AddDate(-1, 0, 0)
	prices, err := h.marketRepo.PriceMatrix(ctx, symbols, from, cfg.Simulation.End())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load prices")
		respondError(w, http.StatusUnprocessableEntity, "Failed to load price history")
		return
	}
	returns := timeseries.ReturnsFromPrices(prices)

	engine, err := backtest.Assemble(cfg, h.env, h.logger)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := engine.Run(ctx, prices, returns)
	if err != nil {
		h.logger.WithError(err).Error("Backtest run failed")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	configHash, err := backtestconfig.Hash(cfg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash config")
		respondError(w, http.StatusInternalServerError, "Failed to hash config")
		return
	}

	id, err := h.store.Save(ctx, result, cfg.Strategy.Name, configHash)
	if err != nil {
		h.logger.WithError(err).Error("Failed to save backtest result")
		respondError(w, http.StatusInternalServerError, "Failed to save backtest result")
		return
	}

	summary, err := h.store.Get(ctx, id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to reload backtest result")
		respondError(w, http.StatusInternalServerError, "Failed to load backtest result")
		return
	}

	respondJSON(w, http.StatusCreated, RunResponse{
		ID:      id,
		RunID:   result.RunID,
		Summary: summary,
	})
}

// List returns recent runs, newest first
// GET /api/backtests?limit=N
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	runs, err := h.store.List(ctx, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}

// Get returns one run summary
// GET /api/backtests/{id}
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	summary, err := h.store.Get(ctx, id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// Equity returns the full equity curve of one run
// GET /api/backtests/{id}/equity
func (h *BacktestHandler) Equity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	curve, err := h.store.EquityCurve(ctx, id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load equity curve")
		respondError(w, http.StatusInternalServerError, "Failed to load equity curve")
		return
	}
	if len(curve) == 0 {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": id,
		"count":  len(curve),
		"curve":  curve,
	})
}

// Events returns the rebalance log of one run
// GET /api/backtests/{id}/events
func (h *BacktestHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	events, err := h.store.Events(ctx, id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load events")
		respondError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": id,
		"count":  len(events),
		"events": events,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run id")
		return 0, false
	}
	return id, true
}
