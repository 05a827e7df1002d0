package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/valuecheck/internal/backtest"
	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/strategyconfig"
	"github.com/wonny/valuecheck/pkg/logger"
)

// maxBacktestBody bounds the request body (symbol lists can be long)
const maxBacktestBody = 4 << 20

// BacktestHandler runs backtests on request
type BacktestHandler struct {
	fetcher  contracts.Fetcher
	universe contracts.Universe
	workers  int
	logger   *logger.Logger
}

// NewBacktestHandler creates a new backtest handler; universe may be nil
func NewBacktestHandler(fetcher contracts.Fetcher, universe contracts.Universe, workers int, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{
		fetcher:  fetcher,
		universe: universe,
		workers:  workers,
		logger:   log,
	}
}

// BacktestRequest is the POST body. Options use the strategy file keys;
// omitted keys keep their defaults.
type BacktestRequest struct {
	Symbols []string        `json:"symbols"`
	Options json.RawMessage `json:"options"`
}

// RunBacktest runs one backtest synchronously
// POST /api/backtests
func (h *BacktestHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BacktestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBacktestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, err := decodeOptions(req.Options)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		if h.universe == nil {
			respondError(w, http.StatusBadRequest, "symbols are required for this data source")
			return
		}
		symbols, err = h.universe.Companies(ctx)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list companies")
			respondError(w, http.StatusInternalServerError, "Failed to list companies")
			return
		}
	}

	pipeline, err := evaluation.NewPipeline(cfg.PipelineConfig())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := cfg.BacktestOptions()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	evalDate, err := cfg.EvaluationDate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := backtest.NewEngine(h.fetcher, pipeline, h.logger, h.workers)
	report, err := engine.Run(ctx, backtest.Config{EvaluationDate: evalDate, Options: opts}, symbols)
	if err != nil {
		h.logger.WithError(err).Error("Backtest failed")
		respondError(w, http.StatusInternalServerError, "Backtest failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    report,
	})
}

// decodeOptions applies raw over the defaults and validates the result
func decodeOptions(raw json.RawMessage) (*strategyconfig.Config, error) {
	cfg := strategyconfig.Default()
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.New("invalid options: " + err.Error())
		}
	}
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
