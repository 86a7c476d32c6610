package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pairstream/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "pairstream",
		Short:        "QuickSwap pair status and swap streamer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Stream pair status, swaps, anomalies and latency stats",
		RunE:  runStream,
	}
	addCommonFlags(runCmd.Flags())
	runCmd.Flags().Duration("block-interval", 300*time.Millisecond, "new-block filter poll interval")
	runCmd.Flags().Duration("swap-interval", 300*time.Millisecond, "swap filter poll interval")
	runCmd.Flags().Duration("stats-interval", 10*time.Second, "latency report interval")
	runCmd.Flags().StringSlice("sink", []string{config.SinkConsole}, "sinks (console, jsonl, kafka, redis, postgres)")
	runCmd.Flags().String("out", "./data/events.jsonl", "output JSONL path for the jsonl sink")
	runCmd.Flags().StringSlice("kafka-brokers", nil, "kafka broker addresses (comma-separated)")
	runCmd.Flags().String("kafka-topic", "pairstream.events", "kafka topic")
	runCmd.Flags().String("redis-addr", "", "redis address")
	runCmd.Flags().String("redis-password", "", "redis password")
	runCmd.Flags().Int("redis-db", 0, "redis database")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address, empty disables")

	root.AddCommand(runCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current status of every pair and exit",
		RunE:  runSnapshot,
	}
	addCommonFlags(snapshotCmd.Flags())

	root.AddCommand(snapshotCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "Polygon RPC URL (ws or http)")
	flags.StringSlice("pair", config.DefaultPairs, "pairs to watch as ID=address (comma-separated)")
	flags.Int("pool-size", 6, "pooled connections per pair")
	flags.Duration("acquire-timeout", 3*time.Second, "connection checkout timeout")
	flags.Int("dial-retries", 3, "retries per connection dial at startup")
	flags.Duration("dial-backoff", 500*time.Millisecond, "initial dial retry backoff")
	flags.Int("workers", 8, "concurrent remote calls")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
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
