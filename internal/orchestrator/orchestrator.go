// Package orchestrator supervises the bot's long-running tasks: the live
// transaction feed, the price enrichment pass, and the timelock expiry
// sweep. A fatal feed error shuts everything down.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JPShag/ComitSwapBot/internal/swap"
	"github.com/JPShag/ComitSwapBot/pkg/logging"

	"github.com/shopspring/decimal"
)

// SwapStore is the persistence surface the orchestrator needs. Both
// passes work on snapshots, so every write-back is guarded on the swap
// still being in the state the snapshot was taken from. A settle written
// by the live classifier in between wins and the stale snapshot is
// dropped.
type SwapStore interface {
	SaveSwapIfState(ctx context.Context, s *swap.AtomicSwap, expect swap.SwapState) (bool, error)
	GetSwapsByState(ctx context.Context, state swap.SwapState) ([]*swap.AtomicSwap, error)
	SetNotificationID(ctx context.Context, swapID, notificationID string) error
	CountByState(ctx context.Context) (map[swap.SwapState]int, error)
}

// RateSource converts BTC amounts at the current exchange rate.
type RateSource interface {
	ConvertBTCToXMR(ctx context.Context, btc decimal.Decimal) (decimal.Decimal, decimal.Decimal, error)
}

// Dispatcher fans swap events out to the configured sinks.
type Dispatcher interface {
	NotifySwap(ctx context.Context, s *swap.AtomicSwap) (string, error)
}

// FeedRunner runs the live transaction feed until failure or cancel.
type FeedRunner interface {
	Watch(ctx context.Context) error
}

// ChainTip reports the current block height.
type ChainTip interface {
	GetBlockHeight(ctx context.Context) (int64, error)
}

// StatusSink receives periodic counters, typically the health server.
type StatusSink interface {
	UpdateStatus(fields map[string]interface{})
}

// Config tunes the orchestrator loops.
type Config struct {
	// EnrichInterval is the pause between enrichment passes.
	EnrichInterval time.Duration

	// ErrorBackoff replaces EnrichInterval after a failed pass.
	ErrorBackoff time.Duration

	// SweepInterval is the pause between expiry sweeps.
	SweepInterval time.Duration

	// ShutdownTimeout bounds how long Run waits for tasks after cancel.
	ShutdownTimeout time.Duration
}

// Orchestrator wires the feed, store, oracle, and notifiers together.
type Orchestrator struct {
	cfg      Config
	store    SwapStore
	index    *swap.PendingIndex
	feed     FeedRunner
	rates    RateSource
	notifier Dispatcher
	tip      ChainTip
	status   StatusSink
	log      *logging.Logger
}

// New creates an orchestrator. status may be nil.
func New(cfg Config, store SwapStore, index *swap.PendingIndex, feed FeedRunner,
	rates RateSource, notifier Dispatcher, tip ChainTip, status StatusSink,
	log *logging.Logger) *Orchestrator {

	if cfg.EnrichInterval <= 0 {
		cfg.EnrichInterval = 30 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if log == nil {
		log = logging.GetDefault()
	}

	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		index:    index,
		feed:     feed,
		rates:    rates,
		notifier: notifier,
		tip:      tip,
		status:   status,
		log:      log.Component("orchestrator"),
	}
}

// Run rehydrates the pending index and supervises all tasks until the
// context is canceled or the feed fails fatally. After cancellation it
// waits up to ShutdownTimeout for the tasks, then abandons them.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.index.Rehydrate(ctx, o.store); err != nil {
		return fmt.Errorf("rehydrating pending index: %w", err)
	}
	o.log.Info("pending index rehydrated", "entries", o.index.Len())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.feed.Watch(gctx)
	})

	g.Go(func() error {
		o.enrichLoop(gctx)
		return nil
	})

	g.Go(func() error {
		o.sweepLoop(gctx)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	// Canceled; give the tasks a bounded window to wind down.
	select {
	case err := <-done:
		return err
	case <-time.After(o.cfg.ShutdownTimeout):
		o.log.Warn("shutdown timeout exceeded, abandoning tasks")
		return ctx.Err()
	}
}

// enrichLoop periodically prices pending swaps and dispatches
// notifications. A failed pass backs off before retrying.
func (o *Orchestrator) enrichLoop(ctx context.Context) {
	interval := o.cfg.EnrichInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := o.EnrichPass(ctx); err != nil {
			o.log.Warn("enrichment pass failed", "err", err)
			interval = o.cfg.ErrorBackoff
		} else {
			interval = o.cfg.EnrichInterval
		}

		o.publishStatus(ctx)
	}
}

// EnrichPass prices locked swaps that are missing an XMR amount and
// notifies swaps that have one but were never announced.
func (o *Orchestrator) EnrichPass(ctx context.Context) error {
	swaps, err := o.store.GetSwapsByState(ctx, swap.StateLocked)
	if err != nil {
		return fmt.Errorf("loading locked swaps: %w", err)
	}

	for _, s := range swaps {
		if s.XMRAmount == nil {
			xmr, rate, err := o.rates.ConvertBTCToXMR(ctx, s.BTCAmount)
			if err != nil {
				// No rate this round; try again next pass.
				o.log.Debug("rate unavailable", "swap_id", s.SwapID, "err", err)
				continue
			}
			s.XMRAmount = &xmr
			s.ExchangeRate = &rate
			s.LastUpdated = time.Now().UTC()
			applied, err := o.store.SaveSwapIfState(ctx, s, swap.StateLocked)
			if err != nil {
				return fmt.Errorf("saving enriched swap %s: %w", s.SwapID, err)
			}
			if !applied {
				// Settled while we were pricing it; nothing to announce.
				continue
			}
		}

		if s.XMRAmount != nil && s.NotificationSent == "" {
			id, err := o.notifier.NotifySwap(ctx, s)
			if err != nil {
				o.log.Warn("notification failed", "swap_id", s.SwapID, "err", err)
				continue
			}
			if err := o.store.SetNotificationID(ctx, s.SwapID, id); err != nil {
				return fmt.Errorf("recording notification for %s: %w", s.SwapID, err)
			}
		}
	}

	return nil
}

// sweepLoop periodically expires locked swaps whose timelock has passed.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.SweepInterval):
		}

		if err := o.SweepPass(ctx); err != nil {
			o.log.Warn("expiry sweep failed", "err", err)
		}
	}
}

// SweepPass marks locked swaps as expired once their timelock has
// elapsed. Expired swaps stay in the pending index so late spends still
// resolve.
func (o *Orchestrator) SweepPass(ctx context.Context) error {
	tipHeight, err := o.tip.GetBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("fetching tip height: %w", err)
	}

	swaps, err := o.store.GetSwapsByState(ctx, swap.StateLocked)
	if err != nil {
		return fmt.Errorf("loading locked swaps: %w", err)
	}

	now := time.Now().UTC()
	for _, s := range swaps {
		if !s.TimelockPassed(tipHeight, now) {
			continue
		}
		if err := s.MarkExpired(); err != nil {
			continue
		}
		applied, err := o.store.SaveSwapIfState(ctx, s, swap.StateLocked)
		if err != nil {
			return fmt.Errorf("saving expired swap %s: %w", s.SwapID, err)
		}
		if !applied {
			// Settled since the snapshot was taken; the settle stands.
			continue
		}
		o.index.Insert(s)
		o.log.Info("swap expired", "swap_id", s.SwapID,
			"timelock", s.LockTransaction.Params.Timelock)
	}

	return nil
}

// publishStatus pushes counters to the status sink, if configured.
func (o *Orchestrator) publishStatus(ctx context.Context) {
	if o.status == nil {
		return
	}

	fields := map[string]interface{}{
		"pending_index": o.index.Len(),
	}
	if counts, err := o.store.CountByState(ctx); err == nil {
		for state, n := range counts {
			fields["swaps_"+string(state)] = n
		}
	}
	o.status.UpdateStatus(fields)
}
