package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/fetcher/fmp"
	"github.com/wonny/valuecheck/internal/fetcher/simfin"
	"github.com/wonny/valuecheck/internal/fetcher/store"
	"github.com/wonny/valuecheck/pkg/config"
	"github.com/wonny/valuecheck/pkg/database"
	"github.com/wonny/valuecheck/pkg/httputil"
	"github.com/wonny/valuecheck/pkg/logger"
	"github.com/wonny/valuecheck/pkg/redis"
)

// keyPrefix namespaces every redis key this program writes
const keyPrefix = "valuecheck"

// deps holds everything a command needs, built from the environment
// ⭐ SSOT: 데이터 소스 선택과 의존성 조립은 여기서만
type deps struct {
	cfg      *config.Config
	log      *logger.Logger
	fetcher  contracts.Fetcher
	universe contracts.Universe
	cache    *redis.Cache
	redis    *redis.Client
	db       *database.DB
	store    *store.Fetcher // nil unless DATA_SOURCE=postgres
	fmp      *fmp.Fetcher   // nil without FMP_API_KEY

	closers []func()
}

// setup loads config, connects the optional services and opens the data source
func setup(ctx context.Context) (*deps, error) {
	// 1. Load config
	if dataSource != "" {
		if err := os.Setenv("DATA_SOURCE", dataSource); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	d := &deps{cfg: cfg, log: log}

	// 3. Redis (optional)
	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	d.closers = append(d.closers, func() { _ = rdb.Close() })
	d.redis = rdb
	d.cache = redis.NewCache(rdb, keyPrefix)

	// 4. Data source
	switch cfg.DataSource {
	case config.SourceSimFin:
		mem, err := simfin.Load(ctx, cfg.SimFin.DataDir, log)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("load simfin data: %w", err)
		}
		d.fetcher, d.universe = mem, mem

	case config.SourceFMP:
		d.fmp = newFMPFetcher(cfg, rdb, d.cache, log)
		d.fetcher, d.universe = d.fmp, d.fmp

	case config.SourcePostgres:
		if err := d.openStore(ctx, rdb); err != nil {
			d.Close()
			return nil, err
		}
	}

	log.WithFields(map[string]interface{}{
		"data_source": cfg.DataSource,
		"redis":       rdb.Enabled(),
		"workers":     cfg.Workers,
	}).Debug("Dependencies ready")

	return d, nil
}

func (d *deps) openStore(ctx context.Context, rdb *redis.Client) error {
	db, err := database.New(ctx, d.cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	d.db = db
	d.closers = append(d.closers, db.Close)

	if err := store.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var upstream contracts.Fetcher
	if d.cfg.FMP.APIKey != "" {
		d.fmp = newFMPFetcher(d.cfg, rdb, d.cache, d.log)
		upstream = d.fmp
	} else {
		d.log.Info("FMP_API_KEY not set: store is read-only")
	}

	d.store = store.NewFetcher(db.Pool, upstream, d.log)
	d.fetcher, d.universe = d.store, d.store
	return nil
}

// newFMPFetcher throttles in-process and, when redis is on, across processes
func newFMPFetcher(cfg *config.Config, rdb *redis.Client, cache *redis.Cache, log *logger.Logger) *fmp.Fetcher {
	client := httputil.New(log).
		WithLocalLimit(cfg.FMP.RequestsPerSecond, cfg.FMP.Burst).
		WithRateLimiter(redis.NewRateLimiter(rdb, keyPrefix), redis.FMPRateLimit(cfg.FMP.RequestsPerSecond))
	return fmp.New(cfg.FMP, client, cache, log)
}

// Close releases connections in reverse order of opening
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
