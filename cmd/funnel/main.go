// Command funnel runs the strategy-discovery pipeline end to end: it
// drives validated candidates through optimization, IS/OOS evaluation,
// scoring, the shuffle test, walk-forward validation, and pool admission,
// while serving a read-only inspection API alongside it.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/sync/errgroup"

	"github.com/poorman/alphafunnel/internal/api"
	"github.com/poorman/alphafunnel/internal/coinregistry"
	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/dataset"
	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/logicloader"
	"github.com/poorman/alphafunnel/internal/marketdata"
	"github.com/poorman/alphafunnel/internal/metrics"
	"github.com/poorman/alphafunnel/internal/pipeline"
	"github.com/poorman/alphafunnel/internal/pool"
	"github.com/poorman/alphafunnel/internal/retest"
	"github.com/poorman/alphafunnel/internal/shuffle"
	"github.com/poorman/alphafunnel/internal/store"
)

var log = logger.Named("main")

func main() {
	yamlPath := flag.String("config", "", "optional YAML config overlay")
	apiAddr := flag.String("api-addr", ":8090", "inspection API listen address")
	flag.Parse()

	cfg, err := config.Load(*yamlPath)
	if err != nil {
		log.Errorf("loading config: %v", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.StoreDSN)
	if err != nil {
		log.Errorf("opening store: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	metrics.Init()

	futuresClient := futures.NewClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
	binanceProvider := marketdata.NewBinanceProvider(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
	cachedMarket := marketdata.NewCachedProvider(binanceProvider, 5*time.Minute)

	coinCatalog := coinregistry.NewStaticRegistry()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := coinCatalog.LoadFromStore(ctx, db.Coins()); err != nil {
		log.Warnf("loading coin catalog from store: %v", err)
	}
	coinRefresher := coinregistry.NewRefresher(futuresClient, coinCatalog, db.Coins())
	if err := coinRefresher.Refresh(ctx); err != nil {
		log.Warnf("initial coin catalog refresh: %v", err)
	}

	datasetProvider := dataset.NewProvider(cachedMarket, coinCatalog, cfg)
	logicLoader := logicloader.NewLoader()
	shuffleTester := shuffle.NewTester(db.Verdicts(), 1024)
	poolManager := pool.NewManager(cfg.PoolMaxSize, cfg.PoolMinScore)
	if entries, err := db.Pool().List(ctx); err != nil {
		log.Warnf("loading pool entries from store: %v", err)
	} else {
		poolManager.LoadEntries(entries)
	}
	retestScheduler := retest.NewScheduler(poolManager, db.Candidates(), cfg.RetestIntervalDays)

	worker := pipeline.NewPool(pipeline.Deps{
		Claims:    db.Claims(),
		Updater:   db.Candidates(),
		Events:    db.Events(),
		Datasets:  datasetProvider,
		Logic:     logicLoader,
		Pool:      poolManager,
		PoolStore: db.Pool(),
		Shuffle:   shuffleTester,
		Retest:    retestScheduler,
		Config:    cfg,
	})

	apiServer := api.NewServer(db.Candidates(), db.Events(), poolManager)

	streamSymbols := universeSymbolsForStream(ctx, coinCatalog, cfg.CoinUniverseSize)
	streamRefresher := marketdata.NewStreamRefresher(streamSymbols, "1m", cachedMarket)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		streamRefresher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := apiServer.Run(*apiAddr); err != nil {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Errorf("funnel exited: %v", err)
		os.Exit(1)
	}
	log.Infof("funnel shut down cleanly")
}

func universeSymbolsForStream(ctx context.Context, registry *coinregistry.StaticRegistry, n int) []string {
	coins, err := registry.TopByVolume(ctx, n)
	if err != nil {
		log.Warnf("resolving stream universe: %v", err)
		return nil
	}
	symbols := make([]string, len(coins))
	for i, c := range coins {
		symbols[i] = c.Symbol
	}
	return symbols
}
