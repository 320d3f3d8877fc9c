// Package main provides the swapbotd daemon - a Bitcoin HTLC atomic swap
// detector and tracker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/urfave/cli"

	"github.com/JPShag/ComitSwapBot/internal/backend"
	"github.com/JPShag/ComitSwapBot/internal/config"
	"github.com/JPShag/ComitSwapBot/internal/health"
	"github.com/JPShag/ComitSwapBot/internal/notify"
	"github.com/JPShag/ComitSwapBot/internal/orchestrator"
	"github.com/JPShag/ComitSwapBot/internal/price"
	"github.com/JPShag/ComitSwapBot/internal/storage"
	"github.com/JPShag/ComitSwapBot/internal/swap"
	"github.com/JPShag/ComitSwapBot/pkg/helpers"
	"github.com/JPShag/ComitSwapBot/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

const (
	testnetAPIURL = "https://mempool.space/testnet/api"
	testnetWSURL  = "wss://mempool.space/testnet/api/v1/ws"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[swapbotd] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()

	app.Name = "swapbotd"
	app.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	app.Usage = "detect and track Bitcoin HTLC atomic swaps"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "data-dir",
			Value: "~/.swapbot",
			Usage: "data directory for config and database",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "config file path (default: <data-dir>/config.yaml)",
		},
		cli.BoolFlag{
			Name:  "testnet",
			Usage: "run on testnet (separate network and data)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, warn, error), overrides config",
		},
	}
	app.Commands = []cli.Command{
		watchCommand, checkCommand, backfillCommand, listCommand,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

// daemon bundles the shared wiring every command needs.
type daemon struct {
	cfg        *config.Config
	log        *logging.Logger
	store      *storage.Storage
	chain      *backend.MempoolBackend
	index      *swap.PendingIndex
	classifier *swap.Classifier
}

func setup(ctx *cli.Context) (*daemon, error) {
	dataDir := ctx.GlobalString("data-dir")
	if ctx.GlobalBool("testnet") {
		dataDir = filepath.Join(dataDir, "testnet")
	}

	configDir := dataDir
	if path := ctx.GlobalString("config"); path != "" {
		configDir = filepath.Dir(path)
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// CLI flags take precedence over the config file.
	cfg.Storage.DataDir = dataDir
	if ctx.GlobalBool("testnet") {
		cfg.NetworkType = config.NetworkTestnet
		cfg.Mempool.APIURL = testnetAPIURL
		cfg.Mempool.WSURL = testnetWSURL
	}
	if lvl := ctx.GlobalString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	log := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Debug("configuration loaded",
		"config", config.ConfigPath(configDir),
		"db", cfg.DatabasePath(),
		"testnet", cfg.IsTestnet())

	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	chain := backend.NewMempoolBackend(cfg.Mempool.APIURL, cfg.Mempool.Timeout)
	index := swap.NewPendingIndex()
	classifier := swap.NewClassifier(chain, store, index, log)

	return &daemon{
		cfg:        cfg,
		log:        log,
		store:      store,
		chain:      chain,
		index:      index,
		classifier: classifier,
	}, nil
}

func (d *daemon) close() {
	if err := d.store.Close(); err != nil {
		d.log.Warn("failed to close storage", "error", err)
	}
}

func (d *daemon) newWatcher() *swap.Watcher {
	return swap.NewWatcher(swap.WatcherConfig{
		WSURL:         d.cfg.Mempool.WSURL,
		MaxRetries:    d.cfg.Watcher.MaxRetries,
		BackfillDelay: d.cfg.Watcher.BackfillDelay,
	}, d.classifier, d.chain, d.log)
}

var watchCommand = cli.Command{
	Name:   "watch",
	Usage:  "follow the live transaction feed and track swaps",
	Action: watch,
}

func watch(ctx *cli.Context) error {
	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	runCtx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if err := d.chain.Connect(runCtx); err != nil {
		return fmt.Errorf("mempool backend unreachable: %w", err)
	}

	oracle := price.New(price.Config{
		APIURL:   d.cfg.Price.APIURL,
		APIKey:   d.cfg.Price.APIKey,
		CacheTTL: d.cfg.Price.CacheTTL,
	}, d.log)

	var notifiers []notify.Notifier
	if d.cfg.Notify.Console {
		notifiers = append(notifiers, notify.NewConsole())
	}
	for _, url := range d.cfg.Notify.WebhookURLs {
		notifiers = append(notifiers, notify.NewWebhook(url))
	}
	if d.cfg.Notify.Twitter.Enabled {
		notifiers = append(notifiers, notify.NewTwitter(d.cfg.Notify.Twitter.BearerToken))
	}
	manager := notify.NewManager(d.log, notifiers...)

	var status orchestrator.StatusSink
	if d.cfg.Health.Enabled {
		healthSrv := health.NewServer(d.cfg.Health.ListenAddr, d.log)
		status = healthSrv
		go func() {
			if err := healthSrv.Start(); err != nil {
				d.log.Error("health server failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(
				context.Background(), 5*time.Second,
			)
			defer cancel()
			if err := healthSrv.Stop(stopCtx); err != nil {
				d.log.Warn("health server shutdown failed", "error", err)
			}
		}()
	}

	orch := orchestrator.New(orchestrator.Config{
		EnrichInterval: d.cfg.Watcher.EnrichInterval,
		SweepInterval:  d.cfg.Watcher.SweepInterval,
	}, d.store, d.index, d.newWatcher(), oracle, manager, d.chain, status, d.log)

	d.log.Info("swap bot starting",
		"version", version,
		"network", d.cfg.NetworkType,
		"feed", d.cfg.Mempool.WSURL,
		"notifiers", manager.Len())

	return orch.Run(runCtx)
}

var checkCommand = cli.Command{
	Name:      "check",
	Usage:     "classify a single transaction and show its swap, if any",
	ArgsUsage: "txid",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "txid",
			Usage: "transaction id to inspect",
		},
	},
	Action: check,
}

func check(ctx *cli.Context) error {
	txid := ctx.String("txid")
	if txid == "" && ctx.NArg() > 0 {
		txid = ctx.Args().First()
	}
	if txid == "" {
		return errors.New("txid is required")
	}
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return fmt.Errorf("invalid txid %q: %w", txid, err)
	}

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Rehydrate so spends of already-tracked locks classify correctly.
	if err := d.index.Rehydrate(runCtx, d.store); err != nil {
		return err
	}

	sw, err := d.classifier.CheckTransaction(runCtx, txid)
	if err != nil {
		return err
	}
	if sw == nil {
		fmt.Println("transaction is not part of a tracked atomic swap")
		return nil
	}

	fmt.Println(notify.FormatSwapMessage(sw))
	return nil
}

var backfillCommand = cli.Command{
	Name:  "backfill",
	Usage: "scan a historical block range for swap activity",
	Flags: []cli.Flag{
		cli.Int64Flag{
			Name:  "start-height",
			Usage: "first block height to scan",
		},
		cli.Int64Flag{
			Name:  "end-height",
			Usage: "last block height to scan (inclusive)",
		},
	},
	Action: backfill,
}

func backfill(ctx *cli.Context) error {
	start := ctx.Int64("start-height")
	end := ctx.Int64("end-height")
	if start <= 0 || end <= 0 {
		return errors.New("start-height and end-height are required")
	}

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	runCtx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if err := d.index.Rehydrate(runCtx, d.store); err != nil {
		return err
	}

	d.log.Info("backfill starting", "start", start, "end", end)
	return d.newWatcher().Backfill(runCtx, start, end)
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "show recently updated swaps",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "limit",
			Value: 10,
			Usage: "maximum number of swaps to show",
		},
	},
	Action: list,
}

func list(ctx *cli.Context) error {
	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swaps, err := d.store.GetRecentSwaps(runCtx, ctx.Int("limit"))
	if err != nil {
		return err
	}
	if len(swaps) == 0 {
		fmt.Println("no swaps recorded")
		return nil
	}

	for _, s := range swaps {
		fmt.Printf("%-18s %-9s %12s BTC  updated %s\n",
			helpers.ShortID(s.SwapID),
			s.CurrentState,
			s.BTCAmount.String(),
			s.LastUpdated.Format(time.RFC3339))
	}
	return nil
}
