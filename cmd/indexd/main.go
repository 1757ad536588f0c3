package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"meme-token-ledger/internal/api"
	"meme-token-ledger/internal/candles"
	"meme-token-ledger/internal/chain"
	"meme-token-ledger/internal/classifier"
	"meme-token-ledger/internal/config"
	"meme-token-ledger/internal/enrich"
	"meme-token-ledger/internal/ingest"
	"meme-token-ledger/internal/lifecycle"
	"meme-token-ledger/internal/logging"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/oracle"
	"meme-token-ledger/internal/pricing"
	"meme-token-ledger/internal/storage"
	chstore "meme-token-ledger/internal/storage/clickhouse"
	"meme-token-ledger/internal/storage/memory"
	"meme-token-ledger/internal/storage/migrations"
	pgstore "meme-token-ledger/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment.
	rpcEndpoint := flag.String("rpc-endpoint", cfg.RPCEndpoint, "BSC RPC endpoint (websocket or http)")
	manager := flag.String("manager", cfg.ManagerAddress, "Launchpad manager contract address")
	helper := flag.String("helper", cfg.HelperAddress, "Helper contract address for oracle quotes (empty for mainnet default)")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse DSN for candles (empty to keep candles in Postgres-free memory store)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	apiAddr := flag.String("api-addr", cfg.APIAddr, "Read API listen address")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics HTTP address (empty to disable)")
	workers := flag.Int("workers", config.EnvInt("WORKERS", 8), "Per-token apply workers")
	flag.Parse()

	cfg.RPCEndpoint = *rpcEndpoint
	cfg.ManagerAddress = *manager
	cfg.HelperAddress = *helper
	cfg.PostgresDSN = *postgresDSN
	cfg.ClickHouseDSN = *clickhouseDSN
	cfg.APIAddr = *apiAddr
	cfg.MetricsAddr = *metricsAddr

	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.ManagerAddress == "" {
		logger.Fatal("manager address is required (--manager or MANAGER_ADDRESS)")
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Info("starting metrics server", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()

		select {
		case <-sigCh:
			logger.Warn("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg, *useMemory, *workers)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("indexer stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, useMemory bool, workers int) error {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("dial rpc %s: %w", cfg.RPCEndpoint, err)
	}
	defer client.Close()

	memEvents := memory.NewEventStore()
	var events storage.EventStore = memEvents
	var registry storage.RegistryStore = memory.NewRegistryStore(memEvents)
	var candleStore storage.CandleStore = memory.NewCandleStore()

	if !useMemory {
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
		events = pgstore.NewEventStore(pool)
		registry = pgstore.NewRegistryStore(pool)

		if cfg.ClickHouseDSN != "" {
			conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
			if err != nil {
				return fmt.Errorf("connect to clickhouse: %w", err)
			}
			defer conn.Close()
			candleStore = chstore.NewCandleStore(conn)
		}
	}

	clsCfg := classifier.DefaultConfig()
	clsCfg.NativeSymbol = cfg.NativeSymbol

	symbols := append(clsCfg.Whitelist.VolatileSymbols(), cfg.NativeSymbol)
	prices := pricing.NewCache(symbols, pricing.NewBinanceSource("", nil), logger)
	go prices.Run(ctx, cfg.PriceRefreshInterval)

	oracleClient, err := oracle.NewClient(client, cfg.HelperAddress, clsCfg.TotalSupply)
	if err != nil {
		return fmt.Errorf("build oracle client: %w", err)
	}

	cls := classifier.New(clsCfg, prices, oracleClient, logger)
	updater := candles.NewUpdater(candleStore, nil, logger)
	engine := lifecycle.New(events, registry, enrich.NewClient(""), lifecycle.DefaultThresholds(), logger)

	srv := api.NewServer(events, registry, candleStore, logger)
	apiServer := &http.Server{Addr: cfg.APIAddr, Handler: srv.Router()}
	go func() {
		logger.Info("starting api server", zap.String("addr", cfg.APIAddr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
	}()

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.QualifySweepSpec, func() {
		start := time.Now()
		n, err := engine.SweepQualification(ctx)
		observability.RecordSweep("qualification", time.Since(start).Seconds(), n)
		if err != nil {
			logger.Error("qualification sweep failed", zap.Error(err))
			return
		}
		observability.DefaultMetrics.LastSuccessfulSweep.Set(float64(time.Now().Unix()))
	}); err != nil {
		return fmt.Errorf("schedule qualification sweep %q: %w", cfg.QualifySweepSpec, err)
	}
	if _, err := sched.AddFunc(cfg.DeadSweepSpec, func() {
		start := time.Now()
		swept, err := engine.SweepDead(ctx)
		observability.RecordSweep("dead", time.Since(start).Seconds(), len(swept))
		if err != nil {
			logger.Error("dead sweep failed", zap.Error(err))
			return
		}
		observability.DefaultMetrics.LastSuccessfulSweep.Set(float64(time.Now().Unix()))
	}); err != nil {
		return fmt.Errorf("schedule dead sweep %q: %w", cfg.DeadSweepSpec, err)
	}
	sched.Start()
	defer sched.Stop()

	pipe := ingest.NewPipeline(ingest.Options{
		Classifier:   cls,
		Events:       events,
		Registry:     registry,
		Candles:      updater,
		Lifecycle:    engine,
		Prices:       prices,
		Reporter:     &ingest.ZapReporter{Logger: logger},
		Stream:       srv,
		Identity:     chain.NewERC20Reader(client),
		Logger:       logger,
		Manager:      cfg.ManagerAddress,
		NativeSymbol: cfg.NativeSymbol,
		TotalSupply:  clsCfg.TotalSupply,
		Whitelist:    clsCfg.Whitelist,
		Workers:      workers,
	})

	source := ingest.NewRPCSource(client, cfg.ManagerAddress, logger)
	logger.Info("starting live indexing",
		zap.String("manager", cfg.ManagerAddress),
		zap.String("rpc", cfg.RPCEndpoint))
	return pipe.Run(ctx, source)
}
