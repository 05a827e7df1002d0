package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/metrics"
	"github.com/wonny/valuecheck/internal/strategyconfig"
	"github.com/wonny/valuecheck/pkg/logger"
	"github.com/wonny/valuecheck/pkg/redis"
)

// EvaluationHandler serves single-company evaluations
// ⭐ SSOT: 종목 평가 API 핸들러는 이 구조체에서만
type EvaluationHandler struct {
	fetcher    contracts.Fetcher
	universe   contracts.Universe
	pipeline   *evaluation.Pipeline
	thresholds metrics.Thresholds
	configHash string
	cache      *redis.Cache
	logger     *logger.Logger
}

// NewEvaluationHandler builds the handler from the server's default options.
// universe may be nil when the data source cannot list companies.
func NewEvaluationHandler(fetcher contracts.Fetcher, universe contracts.Universe, cfg *strategyconfig.Config, cache *redis.Cache, log *logger.Logger) (*EvaluationHandler, error) {
	pipeline, err := evaluation.NewPipeline(cfg.PipelineConfig())
	if err != nil {
		return nil, err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, err
	}
	return &EvaluationHandler{
		fetcher:    fetcher,
		universe:   universe,
		pipeline:   pipeline,
		thresholds: cfg.Thresholds,
		configHash: hash[:12],
		cache:      cache,
		logger:     log,
	}, nil
}

// EvaluationResponse is one company's valuation at one date
type EvaluationResponse struct {
	Symbol         string              `json:"symbol"`
	EvaluationDate string              `json:"evaluation_date"`
	Investable     bool                `json:"investable"`
	Failures       []metrics.Criterion `json:"failures"`
	Metrics        metrics.Values      `json:"metrics"`
}

// GetEvaluation evaluates one company
// GET /api/companies/{symbol}/evaluation?date=2019-06-03
func (h *EvaluationHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		respondError(w, http.StatusBadRequest, "date is required (YYYY-MM-DD)")
		return
	}
	date, err := contracts.ParseDay(dateStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	key := redis.EvaluationKey(symbol, dateStr, h.configHash)
	var cached EvaluationResponse
	if found, err := h.cache.Get(ctx, key, &cached); err == nil && found {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"cached":  true,
			"data":    cached,
		})
		return
	}

	result, err := h.pipeline.EvaluateFrom(ctx, h.fetcher, evaluation.Request{Symbol: symbol, EvaluationDate: date})
	if err != nil {
		h.respondEvaluationError(w, symbol, err)
		return
	}

	failures := result.Metrics.Failures(h.thresholds)
	if failures == nil {
		failures = []metrics.Criterion{}
	}
	resp := EvaluationResponse{
		Symbol:         symbol,
		EvaluationDate: dateStr,
		Investable:     len(failures) == 0,
		Failures:       failures,
		Metrics:        result.Metrics.Values(),
	}

	if err := h.cache.Set(ctx, key, resp, redis.TTLEvaluation); err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to cache evaluation")
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    resp,
	})
}

func (h *EvaluationHandler) respondEvaluationError(w http.ResponseWriter, symbol string, err error) {
	rej, ok := evaluation.AsRejection(err)
	if !ok {
		status := http.StatusInternalServerError
		if errors.Is(err, evaluation.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		h.logger.WithError(err).WithField("symbol", symbol).Error("Evaluation failed")
		respondError(w, status, err.Error())
		return
	}

	status := http.StatusUnprocessableEntity
	switch rej.Kind {
	case evaluation.KindNoDataInRange:
		status = http.StatusNotFound
	case evaluation.KindFetchFailed:
		status = http.StatusBadGateway
		h.logger.WithError(rej).Warn("Upstream fetch failed")
	}

	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   rej.Error(),
		"reason":  rej.Kind,
		"detail":  rej.Detail,
	})
}

// ListCompanies returns the data source's universe
// GET /api/companies
func (h *EvaluationHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	if h.universe == nil {
		respondError(w, http.StatusNotImplemented, "data source cannot list companies")
		return
	}

	symbols, err := h.universe.Companies(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list companies")
		respondError(w, http.StatusInternalServerError, "Failed to list companies")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(symbols),
		"data":    symbols,
	})
}
