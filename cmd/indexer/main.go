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

// indexer runs the block-stream writer (C1-C10) or the daily
// circulating-supply engine (C12) against the same postgres store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/near/near-indexer-for-explorer-sub000/internal/config"
	"github.com/near/near-indexer-for-explorer-sub000/internal/db"
	"github.com/near/near-indexer-for-explorer-sub000/internal/metrics"
	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/orchestrator"
	"github.com/near/near-indexer-for-explorer-sub000/internal/receiptcache"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
	"github.com/near/near-indexer-for-explorer-sub000/internal/rpcclient"
	"github.com/near/near-indexer-for-explorer-sub000/internal/streamer"
	"github.com/near/near-indexer-for-explorer-sub000/internal/supply"
)

var (
	gitTag    = ""
	gitCommit = ""

	MetricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus metrics on",
		Value: ":9090",
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "indexer"
	app.Usage = "NEAR indexer-for-explorer: block-stream writer and circulating-supply engine"
	app.Version = fmt.Sprintf("%s-%s", gitTag, gitCommit)
	app.Flags = []cli.Flag{MetricsAddrFlag}
	app.Commands = []cli.Command{runCommand, supplyCommand}
}

var runCommand = cli.Command{
	Name:   "run",
	Usage:  "stream blocks from the configured source and write them to postgres",
	Action: runIndexer,
}

var supplyCommand = cli.Command{
	Name:   "supply",
	Usage:  "run the daily circulating-supply computation loop",
	Action: runSupplyEngine,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("metrics server stopped")
		}
	}()
}

func runIndexer(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("indexer: load config: %w", err)
	}

	ctx, cancel := setupSignalContext()
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("indexer: open database: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)
	retry.SetRetryHook(func(tag string) { metricsReg.WriterRetries.WithLabelValues(tag).Inc() })
	serveMetrics(c.GlobalString(MetricsAddrFlag.Name), reg)

	cache := receiptcache.NewDefault()
	orch := orchestrator.New(pool, cache, cfg.StrictMode, metricsReg, orchestrator.DefaultExtract)
	loop := streamer.New(orch, cfg.Concurrency)

	in, err := openBlockSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("indexer: open block source: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"strict_mode": cfg.StrictMode,
		"concurrency": cfg.Concurrency,
	}).Info("indexer: starting stream loop")

	return loop.Run(ctx, in)
}

func runSupplyEngine(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("supply: load config: %w", err)
	}
	if cfg.ChainID != config.ChainMainnet {
		logrus.WithField("chain_id", cfg.ChainID).Warn("supply: circulating-supply engine is only meaningful on mainnet, exiting")
		return nil
	}

	ctx, cancel := setupSignalContext()
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("supply: open database: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)
	retry.SetRetryHook(func(tag string) { metricsReg.WriterRetries.WithLabelValues(tag).Inc() })
	serveMetrics(c.GlobalString(MetricsAddrFlag.Name), reg)

	rpc := rpcclient.New(cfg.RPCURL)
	blocks := db.NewBlockWriter(pool)
	accounts := db.NewAccountWriter(pool)
	writer := db.NewSupplyWriter(pool)

	engine := supply.New(rpc, blocks, accounts, writer, metricsReg)

	logrus.Info("supply: starting daily circulating-supply loop")
	return engine.Run(ctx)
}

// openBlockSource is the seam the upstream block stream (an external
// collaborator, out of scope per spec's own overview) plugs into; this
// repository only consumes the channel it would produce.
func openBlockSource(ctx context.Context, cfg *config.Config) (<-chan models.StreamerMessage, error) {
	return nil, fmt.Errorf("indexer: no block source wired; provide one via an external streamer integration")
}
