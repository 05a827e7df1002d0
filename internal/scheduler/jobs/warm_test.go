package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/fetcher/memory"
	"github.com/wonny/valuecheck/pkg/logger"
)

type recordingWarmer struct {
	mu       sync.Mutex
	symbols  []string
	finRange contracts.DateRange
	fail     map[string]error
}

func (w *recordingWarmer) Warm(ctx context.Context, symbol string, financialRange, priceRange contracts.DateRange) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.symbols = append(w.symbols, symbol)
	w.finRange = financialRange
	return w.fail[symbol]
}

func (w *recordingWarmer) warmed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]string(nil), w.symbols...)
	sort.Strings(out)
	return out
}

func newPipeline(t *testing.T) *evaluation.Pipeline {
	t.Helper()
	p, err := evaluation.NewPipeline(evaluation.DefaultConfig())
	require.NoError(t, err)
	return p
}

var asOf = time.Date(2020, 1, 2, 15, 4, 5, 0, time.UTC)

func TestWarmJob_Universe(t *testing.T) {
	universe := memory.New()
	universe.AddCompanies("AAA", "BBB", "CCC")
	w := &recordingWarmer{fail: map[string]error{"BBB": errors.New("http 500")}}

	job := NewWarmJob(w, universe, nil, newPipeline(t), "", 2, logger.Nop())
	assert.Equal(t, DefaultWarmSchedule, job.Schedule())
	assert.Equal(t, "store_warm", job.Name())

	stats, err := job.WarmAt(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Requested)
	assert.Equal(t, 2, stats.Warmed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, w.warmed())

	// the window ends on the evaluation day
	assert.Equal(t, contracts.Day(asOf), w.finRange.End)
}

func TestWarmJob_ExplicitSymbols(t *testing.T) {
	w := &recordingWarmer{}
	job := NewWarmJob(w, nil, []string{"XYZ"}, newPipeline(t), "@daily", 0, logger.Nop())

	stats, err := job.WarmAt(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Warmed)
	assert.Equal(t, []string{"XYZ"}, w.warmed())
}

func TestWarmJob_NoTargets(t *testing.T) {
	job := NewWarmJob(&recordingWarmer{}, nil, nil, newPipeline(t), "", 1, logger.Nop())
	_, err := job.WarmAt(context.Background(), asOf)
	assert.Error(t, err)
}

func TestWarmJob_Run(t *testing.T) {
	tests := []struct {
		name    string
		fail    map[string]error
		wantErr bool
	}{
		{"partial failure is success", map[string]error{"AAA": errors.New("boom")}, false},
		{"all failed", map[string]error{"AAA": errors.New("boom"), "BBB": errors.New("boom")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWarmJob(&recordingWarmer{fail: tt.fail}, nil, []string{"AAA", "BBB"}, newPipeline(t), "", 2, logger.Nop())
			job.AsOf = func() time.Time { return asOf }

			err := job.Run(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWarmJob_Cancelled(t *testing.T) {
	w := &recordingWarmer{fail: map[string]error{"AAA": context.Canceled}}
	job := NewWarmJob(w, nil, []string{"AAA"}, newPipeline(t), "", 1, logger.Nop())

	_, err := job.WarmAt(context.Background(), asOf)
	assert.ErrorIs(t, err, context.Canceled)
}
