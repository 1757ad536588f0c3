package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"meme-token-ledger/internal/candles"
	"meme-token-ledger/internal/config"
	"meme-token-ledger/internal/logging"
	"meme-token-ledger/internal/storage"
	chstore "meme-token-ledger/internal/storage/clickhouse"
	"meme-token-ledger/internal/storage/migrations"
	pgstore "meme-token-ledger/internal/storage/postgres"
)

// Rebuilds derived candles from the canonical event ledger. The ledger is
// the source of truth; this drops and replays every bucket, so running it
// against a live token converges to the same state incremental ingestion
// would have produced.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	tokens := flag.String("tokens", "", "Comma-separated token addresses to rebuild (empty for all)")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse DSN for candles (required)")
	flag.Parse()

	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, logger, *postgresDSN, *clickhouseDSN, *tokens); err != nil {
		logger.Fatal("rebuild failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, postgresDSN, clickhouseDSN, tokenList string) error {
	if postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required")
	}
	if clickhouseDSN == "" {
		return fmt.Errorf("--clickhouse-dsn is required")
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer conn.Close()

	events := pgstore.NewEventStore(pool)
	var registry storage.RegistryStore = pgstore.NewRegistryStore(pool)
	updater := candles.NewUpdater(chstore.NewCandleStore(conn), nil, logger)

	addrs, err := resolveTokens(ctx, registry, tokenList)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		logger.Info("no tokens to rebuild")
		return nil
	}

	start := time.Now()
	for _, addr := range addrs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := updater.Rebuild(ctx, events, addr); err != nil {
			return fmt.Errorf("rebuild %s: %w", addr, err)
		}
	}

	logger.Info("rebuild complete",
		zap.Int("tokens", len(addrs)),
		zap.Duration("took", time.Since(start)))
	return nil
}

func resolveTokens(ctx context.Context, registry storage.RegistryStore, tokenList string) ([]string, error) {
	if tokenList == "" {
		addrs, err := registry.ListAddresses(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tokens: %w", err)
		}
		return addrs, nil
	}

	var addrs []string
	for _, t := range strings.Split(tokenList, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "0x") {
			return nil, fmt.Errorf("%q is not a hex address", t)
		}
		addrs = append(addrs, t)
	}
	return addrs, nil
}
