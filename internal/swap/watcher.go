package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JPShag/ComitSwapBot/pkg/helpers"
	"github.com/JPShag/ComitSwapBot/pkg/logging"
)

// ErrRetriesExhausted is returned by Watch when the WebSocket feed could
// not be re-established within the configured retry budget.
var ErrRetriesExhausted = fmt.Errorf("websocket retries exhausted")

// TxProcessor consumes transaction ids from the feed.
type TxProcessor interface {
	Process(ctx context.Context, txID string) error
}

// BlockSource resolves block heights to transaction id lists for backfill.
type BlockSource interface {
	GetBlockHashAtHeight(ctx context.Context, height int64) (string, error)
	GetBlockTxIDs(ctx context.Context, blockHash string) ([]string, error)
}

// WatcherConfig tunes the feed listener.
type WatcherConfig struct {
	// WSURL is the mempool.space WebSocket endpoint.
	WSURL string

	// MaxRetries bounds consecutive reconnect attempts.
	MaxRetries int

	// BackfillDelay is the pause between transactions during backfill.
	BackfillDelay time.Duration

	// BaseBackoff and MaxBackoff bound the reconnect backoff,
	// min(BaseBackoff*attempt, MaxBackoff).
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// ReadTimeout is the read deadline extended by every message or
	// pong. Pings go out at half this interval.
	ReadTimeout time.Duration
}

// Watcher follows the Bitcoin unconfirmed-transaction feed over WebSocket
// and feeds every announced txid to the processor. It also supports a
// historical backfill mode over confirmed blocks.
type Watcher struct {
	cfg       WatcherConfig
	processor TxProcessor
	blocks    BlockSource
	log       *logging.Logger
}

// NewWatcher creates a watcher. Zero config fields get defaults.
func NewWatcher(cfg WatcherConfig, processor TxProcessor, blocks BlockSource, log *logging.Logger) *Watcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackfillDelay <= 0 {
		cfg.BackfillDelay = 100 * time.Millisecond
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if log == nil {
		log = logging.GetDefault()
	}
	return &Watcher{
		cfg:       cfg,
		processor: processor,
		blocks:    blocks,
		log:       log.Component("watcher"),
	}
}

// Watch runs the live feed until the context is canceled or the retry
// budget is exhausted. Per-transaction failures are logged and skipped.
func (w *Watcher) Watch(ctx context.Context) error {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := w.connect(ctx)
		if err != nil {
			attempt++
			w.log.Warn("websocket connect failed",
				"attempt", attempt, "max", w.cfg.MaxRetries, "err", err)
			if attempt >= w.cfg.MaxRetries {
				return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
			}
			if err := w.backoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		// A successful connect resets the retry budget.
		attempt = 0
		w.log.Info("websocket connected", "url", w.cfg.WSURL)

		err = w.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("websocket disconnected", "err", err)
	}
}

// connect dials the feed and subscribes to the mempool streams.
func (w *Watcher) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.cfg.WSURL, nil)
	if err != nil {
		return nil, err
	}

	sub := map[string]interface{}{
		"action": "want",
		"data":   []string{"mempool-blocks", "live-2h-chart"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing: %w", err)
	}

	return conn, nil
}

// readLoop pumps messages until the connection breaks. A separate ping
// goroutine keeps an idle connection alive; each message or pong extends
// the read deadline, so a connection with no traffic for a full
// ReadTimeout fails the read and triggers a reconnect.
func (w *Watcher) readLoop(ctx context.Context, conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go w.pingLoop(ctx, conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout)); err != nil {
			return err
		}

		for _, txid := range extractTxIDs(message) {
			if err := w.processor.Process(ctx, txid); err != nil {
				w.log.Warn("processing failed",
					"txid", helpers.ShortID(txid), "err", err)
			}
		}
	}
}

// pingLoop writes ping frames at half the read timeout so the pong
// handler can keep extending the deadline while the feed is quiet. It
// also unblocks the reader by closing the connection on cancellation.
func (w *Watcher) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.ReadTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// The reader will surface the broken connection.
				return
			}
		}
	}
}

// backoff sleeps min(base*attempt, max) or until the context is canceled.
func (w *Watcher) backoff(ctx context.Context, attempt int) error {
	delay := w.cfg.BaseBackoff * time.Duration(attempt)
	if delay > w.cfg.MaxBackoff {
		delay = w.cfg.MaxBackoff
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// feedMessage covers the two mempool.space message shapes we consume:
// projected mempool block batches and single transaction events.
type feedMessage struct {
	MempoolBlocks []struct {
		Transactions []struct {
			TxID string `json:"txid"`
		} `json:"transactions"`
	} `json:"mempool-blocks"`
	Tx *struct {
		TxID string `json:"txid"`
	} `json:"tx"`
}

// extractTxIDs pulls transaction ids out of a feed message. Unknown
// message shapes yield nothing.
func extractTxIDs(message []byte) []string {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil
	}

	var txids []string
	for _, block := range msg.MempoolBlocks {
		for _, tx := range block.Transactions {
			if tx.TxID != "" {
				txids = append(txids, tx.TxID)
			}
		}
	}
	if msg.Tx != nil && msg.Tx.TxID != "" {
		txids = append(txids, msg.Tx.TxID)
	}
	return txids
}

// Backfill scans the confirmed blocks from startHeight through endHeight
// inclusive, processing every transaction with a fixed inter-transaction
// delay. Per-block failures are logged and skipped.
func (w *Watcher) Backfill(ctx context.Context, startHeight, endHeight int64) error {
	if startHeight > endHeight {
		return fmt.Errorf("start height %d above end height %d", startHeight, endHeight)
	}

	for height := startHeight; height <= endHeight; height++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		hash, err := w.blocks.GetBlockHashAtHeight(ctx, height)
		if err != nil {
			w.log.Warn("block hash lookup failed", "height", height, "err", err)
			continue
		}

		txids, err := w.blocks.GetBlockTxIDs(ctx, hash)
		if err != nil {
			w.log.Warn("block txids lookup failed", "height", height, "err", err)
			continue
		}

		w.log.Info("backfilling block", "height", height, "txs", len(txids))

		for _, txid := range txids {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := w.processor.Process(ctx, txid); err != nil {
				w.log.Warn("processing failed",
					"txid", helpers.ShortID(txid), "err", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.BackfillDelay):
			}
		}
	}

	return nil
}
