package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JPShag/ComitSwapBot/internal/backend"
	"github.com/JPShag/ComitSwapBot/pkg/helpers"
	"github.com/JPShag/ComitSwapBot/pkg/logging"
)

// ErrSwapNotFound is returned by stores when no swap matches a lookup.
var ErrSwapNotFound = errors.New("swap not found")

// TxSource fetches transactions, typically the mempool.space backend.
type TxSource interface {
	GetTransaction(ctx context.Context, txID string) (*backend.Transaction, error)
}

// Store persists swaps. Implemented by the SQLite store.
type Store interface {
	SaveSwap(ctx context.Context, s *AtomicSwap) error
	GetSwap(ctx context.Context, swapID string) (*AtomicSwap, error)
	GetSwapByLockTxID(ctx context.Context, lockTxID string) (*AtomicSwap, error)
}

// Classifier inspects transactions for HTLC activity. Outputs matching the
// HTLC template open new swaps; inputs spending tracked outputs settle
// them. Both passes run on every transaction, so a transaction that both
// spends one HTLC and opens another is handled in one call.
type Classifier struct {
	source TxSource
	store  Store
	index  *PendingIndex
	log    *logging.Logger

	// mu serializes swap mutation so live-feed and backfill processing
	// cannot interleave on the same swap.
	mu sync.Mutex
}

// NewClassifier creates a classifier over the given source, store, and
// pending index.
func NewClassifier(source TxSource, store Store, index *PendingIndex, log *logging.Logger) *Classifier {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Classifier{
		source: source,
		store:  store,
		index:  index,
		log:    log.Component("classifier"),
	}
}

// Process fetches a transaction and runs both classification passes.
// Re-processing the same transaction is a no-op.
func (c *Classifier) Process(ctx context.Context, txID string) error {
	tx, err := c.source.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", helpers.ShortID(txID), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.detectLocks(ctx, tx); err != nil {
		return err
	}
	return c.detectSpends(ctx, tx)
}

// CheckTransaction processes a single transaction and returns the swap it
// locked, if any. Used by the CLI check command.
func (c *Classifier) CheckTransaction(ctx context.Context, txID string) (*AtomicSwap, error) {
	if err := c.Process(ctx, txID); err != nil {
		return nil, err
	}

	s, err := c.store.GetSwapByLockTxID(ctx, txID)
	if errors.Is(err, ErrSwapNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// detectLocks scans outputs for the HTLC template and opens swaps.
func (c *Classifier) detectLocks(ctx context.Context, tx *backend.Transaction) error {
	for i, out := range tx.Outputs {
		params, ok := MatchHTLCScriptHex(out.ScriptPubKey)
		if !ok {
			continue
		}

		swapID := SwapIDFor(tx.TxID, uint32(i))

		existing, err := c.store.GetSwap(ctx, swapID)
		if err != nil && !errors.Is(err, ErrSwapNotFound) {
			return fmt.Errorf("looking up %s: %w", swapID, err)
		}
		if existing != nil {
			// Seen before; make sure it is indexed if still unsettled.
			if !existing.IsSettled() {
				c.index.Insert(existing)
			}
			continue
		}

		lock := &HTLCRecord{
			TxID:           tx.TxID,
			OutputIndex:    uint32(i),
			ValueSats:      out.Value,
			Classification: ClassLock,
			Params:         params,
			Timestamp:      txTimestamp(tx),
		}
		s := NewAtomicSwap(lock)

		if err := c.store.SaveSwap(ctx, s); err != nil {
			return fmt.Errorf("saving %s: %w", swapID, err)
		}
		c.index.Insert(s)

		c.log.Info("HTLC lock detected",
			"swap_id", s.SwapID,
			"btc", s.BTCAmount.String(),
			"timelock", params.Timelock)
	}
	return nil
}

// detectSpends scans inputs against the pending index and settles swaps.
// Spends of untracked outputs are ignored.
func (c *Classifier) detectSpends(ctx context.Context, tx *backend.Transaction) error {
	for _, in := range tx.Inputs {
		s, ok := c.index.Get(in.TxID)
		if !ok {
			continue
		}
		if s.LockTransaction == nil || in.Vout != s.LockTransaction.OutputIndex {
			continue
		}

		kind, secret := ClassifySpend(in.Witness)

		if kind == SpendRedeem && s.LockTransaction.Params != nil {
			if !VerifySecret(secret, s.LockTransaction.Params.SecretHash) {
				c.log.Warn("revealed secret does not match lock hash",
					"swap_id", s.SwapID, "spend_txid", helpers.ShortID(tx.TxID))
			}
		}

		spend := &HTLCRecord{
			TxID:           tx.TxID,
			OutputIndex:    in.Vout,
			ValueSats:      prevOutValue(in),
			RevealedSecret: secret,
			Timestamp:      txTimestamp(tx),
		}

		if err := s.ApplySpend(kind, spend); err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				c.index.Remove(in.TxID)
				continue
			}
			return fmt.Errorf("settling %s: %w", s.SwapID, err)
		}

		if err := c.store.SaveSwap(ctx, s); err != nil {
			return fmt.Errorf("saving %s: %w", s.SwapID, err)
		}
		c.index.Remove(in.TxID)

		c.log.Info("HTLC spend detected",
			"swap_id", s.SwapID,
			"state", s.CurrentState,
			"spend_txid", helpers.ShortID(tx.TxID))
	}
	return nil
}

func prevOutValue(in backend.TxInput) uint64 {
	if in.PrevOut != nil {
		return in.PrevOut.Value
	}
	return 0
}

func txTimestamp(tx *backend.Transaction) time.Time {
	if tx.BlockTime > 0 {
		return time.Unix(tx.BlockTime, 0).UTC()
	}
	return time.Now().UTC()
}
