package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	RegistryAddress string
	Confirmations   uint64
	PollInterval    time.Duration
	BatchSize       uint64

	// StartBlockSet records whether start-block was given explicitly; a zero
	// value alone cannot distinguish "unset" from "start at genesis".
	StartBlock    uint64
	StartBlockSet bool

	CursorPath string

	GatewayURL     string
	GatewayTimeout time.Duration
	SubgraphURL    string

	ExplorerTxURL string
	SeerMarketURL string
	CurateURL     string

	TelegramToken  string
	TelegramChatID string

	JournalPath string
	PGDSN       string

	MetricsAddr string

	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, .env file, environment variables, and flags into
// Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// Optional .env for local runs; a missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CURATEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", "https://rpc.gnosischain.com")
	v.SetDefault("registry", "0x5aaf9e23a11440f8c1ad6d2e2e5109c7e52cc672")
	v.SetDefault("confirmations", uint64(3))
	v.SetDefault("poll-interval", 15*time.Second)
	v.SetDefault("batch-size", uint64(200))
	v.SetDefault("cursor", "./data/cursor.json")
	v.SetDefault("gateway", "https://ipfs.kleros.io")
	v.SetDefault("gateway-timeout", 10*time.Second)
	v.SetDefault("explorer-tx-url", "https://gnosisscan.io/tx/")
	v.SetDefault("seer-market-url", "https://app.seer.pm/markets/100/")
	v.SetDefault("curate-url", "https://curate.kleros.io/tcr/100/")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		RegistryAddress: v.GetString("registry"),
		Confirmations:   v.GetUint64("confirmations"),
		PollInterval:    v.GetDuration("poll-interval"),
		BatchSize:       v.GetUint64("batch-size"),
		StartBlock:      v.GetUint64("start-block"),
		StartBlockSet:   v.IsSet("start-block"),
		CursorPath:      v.GetString("cursor"),
		GatewayURL:      v.GetString("gateway"),
		GatewayTimeout:  v.GetDuration("gateway-timeout"),
		SubgraphURL:     v.GetString("subgraph"),
		ExplorerTxURL:   v.GetString("explorer-tx-url"),
		SeerMarketURL:   v.GetString("seer-market-url"),
		CurateURL:       v.GetString("curate-url"),
		TelegramToken:   v.GetString("telegram-token"),
		TelegramChatID:  v.GetString("telegram-chat-id"),
		JournalPath:     v.GetString("journal"),
		PGDSN:           v.GetString("pg-dsn"),
		MetricsAddr:     v.GetString("metrics-addr"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}
