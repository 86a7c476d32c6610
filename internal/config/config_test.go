package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"pairstream/internal/model"
)

func TestParsePairsChecksumsAddresses(t *testing.T) {
	pairs, err := ParsePairs([]string{
		"wmatic_usdc=0x6e7a5fafcec6bb1e78bae2a1f0b612012bf14827",
		" USDC_WETH = 0x853ee4b2a13f8a742d64c8f088be7ba2131f670d ",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].ID != model.PairWMATICUSDC {
		t.Fatalf("id mismatch: %s", pairs[0].ID)
	}
	if pairs[0].Address != "0x6e7a5FAFcec6BB1e78bAE2A1F0B612012BF14827" {
		t.Fatalf("address not checksummed: %s", pairs[0].Address)
	}
}

func TestParsePairsRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"missing separator": {"WMATIC_USDC"},
		"unknown id":        {"DOGE_SHIB=0x6e7a5fafcec6bb1e78bae2a1f0b612012bf14827"},
		"bad address":       {"WMATIC_USDC=0x1234"},
		"duplicate id": {
			"WMATIC_USDC=0x6e7a5fafcec6bb1e78bae2a1f0b612012bf14827",
			"WMATIC_USDC=0x853ee4b2a13f8a742d64c8f088be7ba2131f670d",
		},
		"duplicate address": {
			"WMATIC_USDC=0x6e7a5fafcec6bb1e78bae2a1f0b612012bf14827",
			"USDC_WETH=0x6E7A5FAFCEC6BB1E78BAE2A1F0B612012BF14827",
		},
	}
	for name, input := range cases {
		if _, err := ParsePairs(input); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	if err := flags.Parse([]string{"--rpc", "wss://polygon.example"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.RPCURL != "wss://polygon.example" {
		t.Fatalf("rpc mismatch: %s", cfg.RPCURL)
	}
	if len(cfg.Pairs) != 3 || cfg.PoolSize != 6 || cfg.Workers != 8 {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
	if cfg.DialRetries != 3 || cfg.DialBackoff != 500*time.Millisecond {
		t.Fatalf("dial defaults mismatch: %d %s", cfg.DialRetries, cfg.DialBackoff)
	}
	if cfg.AcquireTimeout != 3*time.Second || cfg.BlockInterval != 300*time.Millisecond || cfg.StatsInterval != 10*time.Second {
		t.Fatalf("duration defaults mismatch: %+v", cfg)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0] != SinkConsole {
		t.Fatalf("sink default mismatch: %v", cfg.Sinks)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairstream.yaml")
	content := []byte(`
rpc: wss://polygon.example
pair:
  - WMATIC_WETH=0xadbf1854e5883eb8aa7baf50705338739e558e5b
pool-size: 2
sink: jsonl,kafka
kafka-brokers: localhost:9092
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Pairs) != 1 || cfg.Pairs[0].ID != model.PairWMATICWETH {
		t.Fatalf("pairs mismatch: %+v", cfg.Pairs)
	}
	if cfg.PoolSize != 2 {
		t.Fatalf("pool size mismatch: %d", cfg.PoolSize)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[1] != SinkKafka || len(cfg.KafkaBrokers) != 1 {
		t.Fatalf("sink config mismatch: %v %v", cfg.Sinks, cfg.KafkaBrokers)
	}
}

func TestValidateRejectsMissingSinkSettings(t *testing.T) {
	cfg := Config{
		RPCURL:         "wss://polygon.example",
		PoolSize:       1,
		Workers:        1,
		AcquireTimeout: time.Second,
		BlockInterval:  time.Second,
		SwapInterval:   time.Second,
		StatsInterval:  time.Second,
		Sinks:          []string{SinkRedis},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected redis-addr error")
	}
	cfg.Sinks = []string{"carrier-pigeon"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown sink error")
	}
	cfg.Sinks = nil
	cfg.DialRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected dial-retries error")
	}
	cfg.DialRetries = 0
	cfg.RPCURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected rpc error")
	}
}

func TestValidateReportsFirstBadIntervalInOrder(t *testing.T) {
	cfg := Config{
		RPCURL:         "wss://polygon.example",
		PoolSize:       1,
		Workers:        1,
		AcquireTimeout: time.Second,
		StatsInterval:  time.Second,
	}
	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "block-interval") {
			t.Fatalf("expected block-interval error, got %v", err)
		}
	}
	cfg.BlockInterval = time.Second
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "swap-interval") {
		t.Fatalf("expected swap-interval error, got %v", err)
	}
}
