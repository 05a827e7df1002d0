package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/pkg/logger"
)

// DefaultWarmSchedule fires at 02:30 every day (seconds field first)
const DefaultWarmSchedule = "0 30 2 * * *"

// Warmer copies one symbol from the upstream source into the local store
type Warmer interface {
	Warm(ctx context.Context, symbol string, financialRange, priceRange contracts.DateRange) error
}

// WarmStats counts one warm-up pass
type WarmStats struct {
	Requested int           `json:"requested"`
	Warmed    int           `json:"warmed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// WarmJob refreshes the store with the tables an evaluation at AsOf needs
// ⭐ SSOT: 저장소 예열 작업은 이 Job에서만
type WarmJob struct {
	warmer   Warmer
	universe contracts.Universe
	symbols  []string
	pipeline *evaluation.Pipeline
	schedule string
	workers  int
	logger   *logger.Logger

	// AsOf returns the evaluation date to warm for; today when nil
	AsOf func() time.Time
}

// NewWarmJob creates a warm-up job. An empty symbol list warms the whole universe.
func NewWarmJob(warmer Warmer, universe contracts.Universe, symbols []string, pipeline *evaluation.Pipeline, schedule string, workers int, log *logger.Logger) *WarmJob {
	if schedule == "" {
		schedule = DefaultWarmSchedule
	}
	if workers < 1 {
		workers = 1
	}
	return &WarmJob{
		warmer:   warmer,
		universe: universe,
		symbols:  symbols,
		pipeline: pipeline,
		schedule: schedule,
		workers:  workers,
		logger:   log,
	}
}

// Name returns the job name
func (j *WarmJob) Name() string {
	return "store_warm"
}

// Schedule returns the cron schedule
func (j *WarmJob) Schedule() string {
	return j.schedule
}

// Run warms every symbol for today's evaluation window
func (j *WarmJob) Run(ctx context.Context) error {
	asOf := time.Now()
	if j.AsOf != nil {
		asOf = j.AsOf()
	}

	stats, err := j.WarmAt(ctx, asOf)
	if err != nil {
		return err
	}
	if stats.Requested > 0 && stats.Warmed == 0 {
		return fmt.Errorf("warm: all %d symbols failed", stats.Requested)
	}
	return nil
}

// WarmAt warms every symbol for an evaluation at asOf. Per-symbol failures are
// counted, not returned.
func (j *WarmJob) WarmAt(ctx context.Context, asOf time.Time) (WarmStats, error) {
	start := time.Now()

	symbols, err := j.targets(ctx)
	if err != nil {
		return WarmStats{}, err
	}

	req := evaluation.Request{EvaluationDate: asOf}
	finRange, err := j.pipeline.FinancialRange(req)
	if err != nil {
		return WarmStats{}, err
	}
	priceRange, err := j.pipeline.PriceRange(req)
	if err != nil {
		return WarmStats{}, err
	}

	j.logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"as_of":   contracts.Day(asOf).Format(contracts.DateLayout),
	}).Info("Warming store")

	var warmed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			err := j.warmer.Warm(gctx, symbol, finRange, priceRange)
			switch {
			case err == nil:
				warmed.Add(1)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				failed.Add(1)
				j.logger.WithError(err).WithField("symbol", symbol).Warn("Warm failed")
			}
			return nil
		})
	}

	stats := WarmStats{Requested: len(symbols)}
	err = g.Wait()
	stats.Warmed = int(warmed.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	j.logger.WithFields(map[string]interface{}{
		"warmed":   stats.Warmed,
		"failed":   stats.Failed,
		"duration": stats.Duration,
	}).Info("Store warmed")

	return stats, nil
}

func (j *WarmJob) targets(ctx context.Context) ([]string, error) {
	if len(j.symbols) > 0 {
		return j.symbols, nil
	}
	if j.universe == nil {
		return nil, errors.New("warm: no symbols given and the data source cannot list companies")
	}
	symbols, err := j.universe.Companies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return symbols, nil
}
