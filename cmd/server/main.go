// Package main is the entry point for the stock screening service. It wires
// the market database, the vendor source router, the ingestion engine, the
// selection stack and the quality monitor, then runs the nightly ingest on a
// cron schedule until shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/goldeneye0077/stock-picker/internal/clients/eastmoney"
	"github.com/goldeneye0077/stock-picker/internal/clients/tushare"
	"github.com/goldeneye0077/stock-picker/internal/config"
	"github.com/goldeneye0077/stock-picker/internal/database"
	"github.com/goldeneye0077/stock-picker/internal/factors"
	"github.com/goldeneye0077/stock-picker/internal/ingestion"
	"github.com/goldeneye0077/stock-picker/internal/jobs"
	"github.com/goldeneye0077/stock-picker/internal/market"
	"github.com/goldeneye0077/stock-picker/internal/quality"
	"github.com/goldeneye0077/stock-picker/internal/selection"
	"github.com/goldeneye0077/stock-picker/internal/sources"
	"github.com/goldeneye0077/stock-picker/internal/strategy"
	"github.com/goldeneye0077/stock-picker/pkg/logger"
)

// selectionMaxResults caps each nightly per-strategy selection batch.
const selectionMaxResults = 15

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting stock screening service")

	db, err := database.New(database.Config{
		Path: cfg.DatabasePath(),
		Name: "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate market database")
	}

	conn := db.Conn()
	stocks := market.NewStockRepository(conn, log)
	klines := market.NewKlineRepository(conn, log)
	basics := market.NewDailyBasicRepository(conn, log)
	flows := market.NewFundFlowRepository(conn, log)
	moneyFlows := market.NewMoneyFlowRepository(conn, log)
	auctions := market.NewAuctionRepository(conn, log)
	concepts := market.NewConceptRepository(conn, log)
	collections := market.NewCollectionRepository(conn, log)
	qualityRecords := market.NewQualityRepository(conn, log)
	selections := market.NewSelectionRepository(conn, log)
	indicators := market.NewIndicatorRepository(conn, log)

	primary := tushare.NewAdapter(tushare.NewClient(cfg.TushareToken, log))
	secondary := eastmoney.NewAdapter(eastmoney.NewClient(log))
	if !primary.Available() {
		log.Warn().Msg("Primary vendor token missing, running on secondary source only")
	}

	router := sources.NewRouter(
		[]sources.Adapter{primary, secondary},
		sources.RouterConfig{
			Preferred: tushare.SourceName,
			Fallbacks: map[sources.Capability][]string{
				sources.CapListStocks:       {eastmoney.SourceName},
				sources.CapDailyByDate:      {eastmoney.SourceName},
				sources.CapFundFlowByDate:   {eastmoney.SourceName},
				sources.CapDailyBasicByDate: {eastmoney.SourceName},
				sources.CapRealtimeQuotes:   {eastmoney.SourceName},
			},
			CacheTTL:        cfg.Cache.TTL,
			CacheMaxEntries: cfg.Cache.MaxEntries,
		},
		log,
	)

	engine := ingestion.NewEngine(
		ingestion.Config{
			CallDelay:      cfg.Collection.CallDelay,
			RetryCount:     cfg.Collection.RetryCount,
			RetryBaseDelay: cfg.Collection.RetryBaseDelay,
		},
		router,
		stocks, klines, basics, flows, moneyFlows, auctions, concepts, collections,
		log,
	)

	jobManager := jobs.NewManager(log)
	monitor := quality.NewMonitor(7, stocks, klines, flows, collections, qualityRecords, log)

	runner := selection.NewRunner(
		selection.Config{
			Concurrency: cfg.Selection.Concurrency,
			BatchSize:   cfg.Selection.BatchSize,
			Timeout:     cfg.Selection.Timeout,
		},
		stocks, klines, basics, flows, moneyFlows, concepts, selections, indicators,
		factors.NewEngine(log), strategy.NewEvaluator(log), log,
	)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.IngestCron, func() {
		jobManager.Submit(map[string]string{"type": "nightly_ingest"}, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Hour)
			defer cancel()

			run, err := engine.RunIncremental(ctx, ingestion.IncrementalOptions{
				LookbackDays:    5,
				IncludeFundFlow: true,
			})
			if err != nil {
				return run, err
			}
			if _, _, err := engine.IngestKplConcepts(ctx, run.EndDate); err != nil {
				log.Warn().Err(err).Msg("KPL concept ingestion failed")
			}
			if report, err := monitor.Run(); err != nil {
				log.Warn().Err(err).Msg("Quality monitor run failed")
			} else {
				log.Info().Float64("overall", report.OverallScore).Str("band", report.Band).
					Msg("Post-ingest quality report")
			}

			// Fresh data is in: refresh every strategy's pick list.
			for _, id := range []int{
				strategy.StrategyMomentumBreakout,
				strategy.StrategyTrendFollowing,
				strategy.StrategyValueGrowth,
				strategy.StrategySuperLeader,
				strategy.StrategyBottomFishing,
			} {
				jobManager.Submit(
					map[string]string{"type": "selection", "strategy": strategy.Name(id)},
					func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
						return runner.Run(ctx, selection.Options{
							StrategyID: id,
							MaxResults: selectionMaxResults,
							Progress:   progress,
						})
					},
				)
			}
			return run, nil
		})
	})
	if err != nil {
		log.Fatal().Err(err).Str("cron", cfg.IngestCron).Msg("Failed to schedule nightly ingest")
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Info().Str("cron", cfg.IngestCron).Msg("Nightly ingest scheduled")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint on shutdown failed")
	}
}
