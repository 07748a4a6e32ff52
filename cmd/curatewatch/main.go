package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curatewatch/internal/chain"
	"curatewatch/internal/config"
	"curatewatch/internal/metrics"
	"curatewatch/internal/notify"
	"curatewatch/internal/registry"
	"curatewatch/internal/resolve"
	"curatewatch/internal/storage"
	"curatewatch/internal/storage/postgres"
	"curatewatch/internal/watcher"
)

func main() {
	root := &cobra.Command{
		Use:          "curatewatch",
		Short:        "Curate registry watcher with Telegram notifications",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the watcher",
		RunE:  runWatcher,
	}

	runCmd.Flags().String("rpc", "https://rpc.gnosischain.com", "chain RPC URL")
	runCmd.Flags().String("registry", "0x5aaf9e23a11440f8c1ad6d2e2e5109c7e52cc672", "registry contract address")
	runCmd.Flags().Uint64("confirmations", 3, "confirmations before a block is processed")
	runCmd.Flags().Duration("poll-interval", 15*time.Second, "poll interval")
	runCmd.Flags().Uint64("batch-size", 200, "blocks per log query")
	runCmd.Flags().Uint64("start-block", 0, "start block, overrides the persisted cursor")
	runCmd.Flags().String("cursor", "./data/cursor.json", "cursor file path")
	runCmd.Flags().String("gateway", "https://ipfs.kleros.io", "content gateway base URL")
	runCmd.Flags().Duration("gateway-timeout", 10*time.Second, "content gateway request timeout")
	runCmd.Flags().String("subgraph", "", "optional curate subgraph endpoint")
	runCmd.Flags().String("explorer-tx-url", "https://gnosisscan.io/tx/", "transaction explorer base URL")
	runCmd.Flags().String("seer-market-url", "https://app.seer.pm/markets/100/", "market page base URL")
	runCmd.Flags().String("curate-url", "https://curate.kleros.io/tcr/100/", "registry page base URL")
	runCmd.Flags().String("telegram-token", "", "Telegram bot token")
	runCmd.Flags().String("telegram-chat-id", "", "Telegram chat id")
	runCmd.Flags().String("journal", "", "optional notification journal JSONL path")
	runCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the notification journal")
	runCmd.Flags().String("metrics-addr", "", "optional metrics/health listen address, e.g. :9090")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts for chain queries")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	cursorCmd := &cobra.Command{
		Use:   "cursor",
		Short: "Print the persisted cursor",
		RunE:  runCursor,
	}

	cursorCmd.Flags().String("cursor", "./data/cursor.json", "cursor file path")

	root.AddCommand(cursorCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWatcher(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.RegistryAddress) {
		return fmt.Errorf("invalid registry address: %q", cfg.RegistryAddress)
	}
	if cfg.TelegramToken == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.TelegramChatID == "" {
		return fmt.Errorf("telegram chat id is required")
	}
	registryAddr := common.HexToAddress(cfg.RegistryAddress)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	decoder, err := registry.NewDecoder()
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}

	var gateway *resolve.GatewayClient
	if cfg.GatewayURL != "" {
		gateway = resolve.NewGatewayClient(cfg.GatewayURL, cfg.GatewayTimeout)
	}
	var index *resolve.SubgraphClient
	if cfg.SubgraphURL != "" {
		index = resolve.NewSubgraphClient(cfg.SubgraphURL, cfg.GatewayTimeout)
	}
	resolver := resolve.NewResolver(gateway, chainClient, index, logger)

	links := notify.LinkSet{
		ExplorerTxBase: cfg.ExplorerTxURL,
		SeerMarketBase: cfg.SeerMarketURL,
		CurateBase:     cfg.CurateURL,
		Registry:       registryAddr,
	}
	sender := notify.NewNotifier(
		notify.NewClient(notify.DefaultAPIBase, cfg.TelegramToken, 30*time.Second),
		cfg.TelegramChatID, links, logger)

	var journals storage.MultiJournal
	if cfg.JournalPath != "" {
		journals = append(journals, storage.NewJsonlJournal(cfg.JournalPath))
	}
	var pgStore *postgres.Store
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		journals = append(journals, pgStore)
	}
	var journal storage.Journal
	if len(journals) > 0 {
		journal = journals
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.Init()
		srv := metrics.Serve(cfg.MetricsAddr, func(ctx context.Context) error {
			if _, err := chainClient.LatestBlockNumber(ctx); err != nil {
				return err
			}
			if pgStore != nil {
				return pgStore.Ping(ctx)
			}
			return nil
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx, srv)
		}()
	}

	runCfg := watcher.RunConfig{
		Registry:      registryAddr,
		Confirmations: cfg.Confirmations,
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	}
	if cfg.StartBlockSet {
		start := cfg.StartBlock
		runCfg.StartBlock = &start
	}

	runner := watcher.NewRunner(runCfg, chainClient, decoder,
		watcher.NewCorrelator(0), resolver, sender,
		watcher.NewCursorStore(cfg.CursorPath), journal, m, logger)

	logger.Info("watcher start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.String("registry", registryAddr.Hex()),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("cursor", cfg.CursorPath),
	)

	return runner.Run(ctx)
}

func runCursor(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("cursor")
	cursor, ok, err := watcher.NewCursorStore(path).Load()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no cursor")
		return nil
	}
	fmt.Printf("{\"last_block\":%d}\n", cursor.LastBlock)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
