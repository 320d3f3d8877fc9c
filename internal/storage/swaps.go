// Package storage - atomic swap persistence.
// Swaps are stored as a JSON document plus normalized columns so the
// state machine reloads exactly what it saved while queries stay cheap.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JPShag/ComitSwapBot/internal/swap"
)

// swapRow holds the nullable normalized columns derived from a swap.
type swapRow struct {
	redeemTxID   string
	refundTxID   string
	xmrAmount    string
	exchangeRate string
	timelock     uint32
}

func rowFields(sw *swap.AtomicSwap) swapRow {
	var r swapRow
	if sw.RedeemTransaction != nil {
		r.redeemTxID = sw.RedeemTransaction.TxID
	}
	if sw.RefundTransaction != nil {
		r.refundTxID = sw.RefundTransaction.TxID
	}
	if sw.XMRAmount != nil {
		r.xmrAmount = sw.XMRAmount.String()
	}
	if sw.ExchangeRate != nil {
		r.exchangeRate = sw.ExchangeRate.String()
	}
	if sw.LockTransaction != nil && sw.LockTransaction.Params != nil {
		r.timelock = sw.LockTransaction.Params.Timelock
	}
	return r
}

// SaveSwap saves or updates a swap keyed by its swap id.
func (s *Storage) SaveSwap(ctx context.Context, sw *swap.AtomicSwap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSwapLocked(ctx, sw)
}

func (s *Storage) saveSwapLocked(ctx context.Context, sw *swap.AtomicSwap) error {
	doc, err := json.Marshal(sw)
	if err != nil {
		return fmt.Errorf("marshaling swap %s: %w", sw.SwapID, err)
	}
	row := rowFields(sw)

	query := `
		INSERT INTO atomic_swaps (
			swap_id, lock_txid, redeem_txid, refund_txid, state,
			btc_amount, xmr_amount, exchange_rate, timelock,
			detected_at, last_updated, notification_sent, document
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(swap_id) DO UPDATE SET
			redeem_txid = excluded.redeem_txid,
			refund_txid = excluded.refund_txid,
			state = excluded.state,
			btc_amount = excluded.btc_amount,
			xmr_amount = excluded.xmr_amount,
			exchange_rate = excluded.exchange_rate,
			timelock = excluded.timelock,
			last_updated = excluded.last_updated,
			notification_sent = excluded.notification_sent,
			document = excluded.document
	`

	_, err = s.db.ExecContext(ctx, query,
		sw.SwapID,
		sw.LockTransaction.TxID,
		row.redeemTxID,
		row.refundTxID,
		string(sw.CurrentState),
		sw.BTCAmount.String(),
		row.xmrAmount,
		row.exchangeRate,
		row.timelock,
		sw.DetectedAt.Unix(),
		sw.LastUpdated.Unix(),
		sw.NotificationSent,
		string(doc),
	)
	return err
}

// SaveSwapIfState persists sw only while the stored row is still in the
// expected state. It reports false, without writing, when another writer
// already moved the swap on. Callers holding a stale snapshot use this
// so a slow pass cannot roll back a settle that landed in between.
func (s *Storage) SaveSwapIfState(ctx context.Context, sw *swap.AtomicSwap, expect swap.SwapState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(sw)
	if err != nil {
		return false, fmt.Errorf("marshaling swap %s: %w", sw.SwapID, err)
	}
	row := rowFields(sw)

	query := `
		UPDATE atomic_swaps SET
			redeem_txid = ?,
			refund_txid = ?,
			state = ?,
			btc_amount = ?,
			xmr_amount = ?,
			exchange_rate = ?,
			timelock = ?,
			last_updated = ?,
			notification_sent = ?,
			document = ?
		WHERE swap_id = ? AND state = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		row.redeemTxID,
		row.refundTxID,
		string(sw.CurrentState),
		sw.BTCAmount.String(),
		row.xmrAmount,
		row.exchangeRate,
		row.timelock,
		sw.LastUpdated.Unix(),
		sw.NotificationSent,
		string(doc),
		sw.SwapID,
		string(expect),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSwap retrieves a swap by its swap id.
func (s *Storage) GetSwap(ctx context.Context, swapID string) (*swap.AtomicSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT document FROM atomic_swaps WHERE swap_id = ?", swapID)
	return scanSwapDocument(row)
}

// GetSwapByLockTxID retrieves the swap opened by the given lock txid.
func (s *Storage) GetSwapByLockTxID(ctx context.Context, lockTxID string) (*swap.AtomicSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT document FROM atomic_swaps WHERE lock_txid = ? ORDER BY detected_at ASC LIMIT 1", lockTxID)
	return scanSwapDocument(row)
}

// GetSwapsByState returns all swaps in the given state, oldest first.
func (s *Storage) GetSwapsByState(ctx context.Context, state swap.SwapState) ([]*swap.AtomicSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT document FROM atomic_swaps WHERE state = ? ORDER BY detected_at ASC", string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSwaps(rows)
}

// GetRecentSwaps returns the most recently updated swaps.
func (s *Storage) GetRecentSwaps(ctx context.Context, limit int) ([]*swap.AtomicSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT document FROM atomic_swaps ORDER BY last_updated DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSwaps(rows)
}

// SetNotificationID records the notification correlation id for a swap.
// The reload and write-back run under one lock so a settle landing in
// between cannot be overwritten by the stale document.
func (s *Storage) SetNotificationID(ctx context.Context, swapID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT document FROM atomic_swaps WHERE swap_id = ?", swapID)
	sw, err := scanSwapDocument(row)
	if err != nil {
		return err
	}

	sw.NotificationSent = notificationID
	sw.LastUpdated = time.Now().UTC()
	return s.saveSwapLocked(ctx, sw)
}

// CountByState returns the number of swaps per state.
func (s *Storage) CountByState(ctx context.Context) (map[swap.SwapState]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT state, COUNT(*) FROM atomic_swaps GROUP BY state")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[swap.SwapState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[swap.SwapState(state)] = n
	}
	return counts, rows.Err()
}

func scanSwapDocument(row *sql.Row) (*swap.AtomicSwap, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, swap.ErrSwapNotFound
		}
		return nil, err
	}
	return unmarshalSwap(doc)
}

func collectSwaps(rows *sql.Rows) ([]*swap.AtomicSwap, error) {
	var swaps []*swap.AtomicSwap
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		sw, err := unmarshalSwap(doc)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, sw)
	}
	return swaps, rows.Err()
}

func unmarshalSwap(doc string) (*swap.AtomicSwap, error) {
	var sw swap.AtomicSwap
	if err := json.Unmarshal([]byte(doc), &sw); err != nil {
		return nil, fmt.Errorf("unmarshaling swap: %w", err)
	}
	return &sw, nil
}

// Compile-time check that Storage satisfies the classifier's store.
var _ swap.Store = (*Storage)(nil)
var _ swap.SwapLoader = (*Storage)(nil)
