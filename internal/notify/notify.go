// Package notify dispatches swap events to configured sinks: console,
// webhooks, and Twitter. Sinks fail independently; one broken sink never
// blocks the others.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JPShag/ComitSwapBot/internal/price"
	"github.com/JPShag/ComitSwapBot/internal/swap"
	"github.com/JPShag/ComitSwapBot/pkg/helpers"
	"github.com/JPShag/ComitSwapBot/pkg/logging"
)

// ErrAllNotifiersFailed is returned when no sink accepted the event.
var ErrAllNotifiersFailed = errors.New("all notifiers failed")

// Notifier delivers one swap event and returns a correlation id
// (tweet id, uuid, ...).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, s *swap.AtomicSwap) (string, error)
}

// Manager fans a swap event out to all registered notifiers concurrently.
type Manager struct {
	notifiers []Notifier
	log       *logging.Logger
}

// NewManager creates a manager over the given notifiers.
func NewManager(log *logging.Logger, notifiers ...Notifier) *Manager {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Manager{
		notifiers: notifiers,
		log:       log.Component("notify"),
	}
}

// Len returns the number of registered notifiers.
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// NotifySwap dispatches the swap to every notifier and returns the first
// successful correlation id. Individual failures are logged; the call
// fails only when every sink fails.
func (m *Manager) NotifySwap(ctx context.Context, s *swap.AtomicSwap) (string, error) {
	if len(m.notifiers) == 0 {
		return "", ErrAllNotifiersFailed
	}

	type result struct {
		name string
		id   string
		err  error
	}

	results := make([]result, len(m.notifiers))
	var wg sync.WaitGroup
	for i, n := range m.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			id, err := n.Notify(ctx, s)
			results[i] = result{name: n.Name(), id: id, err: err}
		}(i, n)
	}
	wg.Wait()

	var firstID string
	succeeded := 0
	for _, r := range results {
		if r.err != nil {
			m.log.Warn("notifier failed", "notifier", r.name, "swap_id", s.SwapID, "err", r.err)
			continue
		}
		succeeded++
		if firstID == "" {
			firstID = r.id
		}
	}

	m.log.Info("notifications dispatched",
		"swap_id", s.SwapID, "succeeded", succeeded, "total", len(m.notifiers))

	if succeeded == 0 {
		return "", ErrAllNotifiersFailed
	}
	return firstID, nil
}

// FormatSwapMessage renders the human-readable announcement for a swap.
func FormatSwapMessage(s *swap.AtomicSwap) string {
	var b strings.Builder

	switch s.CurrentState {
	case swap.StateLocked:
		b.WriteString("New BTC/XMR atomic swap detected!\n")
	case swap.StateRedeemed:
		b.WriteString("Atomic swap redeemed!\n")
	case swap.StateRefunded:
		b.WriteString("Atomic swap refunded.\n")
	case swap.StateExpired:
		b.WriteString("Atomic swap timelock expired.\n")
	}

	fmt.Fprintf(&b, "Amount: %s BTC", s.BTCAmount.String())
	if s.XMRAmount != nil {
		fmt.Fprintf(&b, " (~%s XMR", s.XMRAmount.Round(4).String())
		if s.ExchangeRate != nil {
			fmt.Fprintf(&b, " @ %s XMR/BTC", s.ExchangeRate.Round(2).String())
		}
		b.WriteString(")")
	}
	b.WriteString("\n")

	if s.LockTransaction != nil {
		fmt.Fprintf(&b, "Lock tx: %s\n", s.LockTransaction.TxID)
	}
	if s.RedeemTransaction != nil {
		fmt.Fprintf(&b, "Redeem tx: %s\n", s.RedeemTransaction.TxID)
	}
	if s.RefundTransaction != nil {
		fmt.Fprintf(&b, "Refund tx: %s\n", s.RefundTransaction.TxID)
	}

	fmt.Fprintf(&b, "Swap: %s", helpers.ShortID(s.SwapID))

	// Messages carrying price data must credit the source.
	if s.XMRAmount != nil || s.ExchangeRate != nil {
		b.WriteString("\n")
		b.WriteString(price.Attribution)
	}

	return b.String()
}
