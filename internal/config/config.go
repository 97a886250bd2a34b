// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.
//
// near-indexer-for-explorer-sub000 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// near-indexer-for-explorer-sub000 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with near-indexer-for-explorer-sub000. If not, see <http://www.gnu.org/licenses/>.

// Package config loads the environment-driven configuration shared by the
// indexer and circulating-supply subcommands: the database URL, the RPC
// endpoint, the chain profile (mainnet/testnet), and the indexer's own
// knobs. The block stream source is an external collaborator and is not
// configured here.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ChainProfile selects the set of well-known lockup/foundation account ids
// and contract-version quirks the circulating-supply engine (C12) uses.
type ChainProfile string

const (
	ChainMainnet ChainProfile = "mainnet"
	ChainTestnet ChainProfile = "testnet"
)

// Config is the full set of runtime knobs read from the environment at
// startup.
type Config struct {
	// DatabaseURL is a postgres:// connection string consumed by pgxpool.
	DatabaseURL string `mapstructure:"database_url"`

	// RPCURL is the JSON-RPC endpoint internal/rpcclient dials.
	RPCURL string `mapstructure:"rpc_url"`

	// ChainID selects the profile used by the circulating-supply engine.
	ChainID ChainProfile `mapstructure:"chain_id"`

	// StrictMode, when true, requires every receipt's parent
	// transaction to resolve from cache/db before a block is considered
	// indexed (spec §4.6/§8 invariant 2); when false, an unresolved
	// parent is logged and skipped rather than retried indefinitely.
	StrictMode bool `mapstructure:"strict_mode"`

	// Concurrency bounds the streamer's in-flight block count. Strict
	// mode's parent-completeness invariant only holds with Concurrency
	// == 1, because out-of-order block processing can observe a receipt
	// before the transaction that produced it has been written.
	Concurrency int `mapstructure:"concurrency"`

	// StartBlockHeight is loaded from the environment (default 0). No
	// component of this repository reads it; where the block stream
	// starts is decided by the external stream source.
	StartBlockHeight uint64 `mapstructure:"start_block_height"`

	// PollInterval is loaded from the environment (default 1m). The
	// circulating-supply engine (C12) does not read it; its schedule uses
	// fixed 2h re-poll intervals.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// MaxRetryAttempts is loaded from the environment (default 0). No
	// internal/retry.Do call site reads it; each passes its own cap.
	MaxRetryAttempts int `mapstructure:"max_retry_attempts"`
}

// Load reads configuration from environment variables prefixed NEAR_EXP_
// (e.g. NEAR_EXP_DATABASE_URL), applying the defaults below for anything
// unset, then validates required fields.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("near_exp")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain_id", string(ChainMainnet))
	v.SetDefault("strict_mode", true)
	v.SetDefault("concurrency", 1)
	v.SetDefault("start_block_height", 0)
	v.SetDefault("poll_interval", time.Minute)
	v.SetDefault("max_retry_attempts", 0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.DatabaseURL = v.GetString("database_url")
	cfg.RPCURL = v.GetString("rpc_url")
	cfg.ChainID = ChainProfile(v.GetString("chain_id"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: NEAR_EXP_DATABASE_URL is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("config: NEAR_EXP_RPC_URL is required")
	}
	switch c.ChainID {
	case ChainMainnet, ChainTestnet:
	default:
		return fmt.Errorf("config: unknown chain_id %q", c.ChainID)
	}
	if c.StrictMode && c.Concurrency != 1 {
		return fmt.Errorf("config: strict_mode requires concurrency=1, got %d", c.Concurrency)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", c.Concurrency)
	}
	return nil
}
