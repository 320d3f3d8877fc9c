package swap

import (
	"context"
	"sync"
)

// PendingIndex maps lock txids to swaps that still await a spend. It lets
// the classifier resolve inputs against tracked swaps without a database
// round trip per input.
type PendingIndex struct {
	mu      sync.RWMutex
	pending map[string]*AtomicSwap
}

// NewPendingIndex creates an empty pending index.
func NewPendingIndex() *PendingIndex {
	return &PendingIndex{
		pending: make(map[string]*AtomicSwap),
	}
}

// Insert adds or refreshes the swap keyed by its lock txid.
func (i *PendingIndex) Insert(s *AtomicSwap) {
	if s == nil || s.LockTransaction == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending[s.LockTransaction.TxID] = s
}

// Get returns the pending swap whose lock txid matches, if any.
func (i *PendingIndex) Get(lockTxID string) (*AtomicSwap, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.pending[lockTxID]
	return s, ok
}

// Remove drops the entry for the given lock txid.
func (i *PendingIndex) Remove(lockTxID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.pending, lockTxID)
}

// Len returns the number of pending entries.
func (i *PendingIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.pending)
}

// LockTxIDs returns the lock txids of all pending entries.
func (i *PendingIndex) LockTxIDs() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ids := make([]string, 0, len(i.pending))
	for id := range i.pending {
		ids = append(ids, id)
	}
	return ids
}

// SwapLoader loads swaps by state, typically backed by the SQLite store.
type SwapLoader interface {
	GetSwapsByState(ctx context.Context, state SwapState) ([]*AtomicSwap, error)
}

// Rehydrate reloads unsettled swaps from the store after a restart.
// Expired swaps stay in the index so a late redeem or refund still
// resolves against them.
func (i *PendingIndex) Rehydrate(ctx context.Context, loader SwapLoader) error {
	for _, state := range []SwapState{StateLocked, StateExpired} {
		swaps, err := loader.GetSwapsByState(ctx, state)
		if err != nil {
			return err
		}
		for _, s := range swaps {
			i.Insert(s)
		}
	}
	return nil
}
