package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleTxJSON = `{
	"txid": "f301e5782ae0e77e291dd2a4b522a2b3a59238e8fb47ccb20913e7c9a2744b15",
	"version": 2,
	"locktime": 0,
	"size": 222,
	"weight": 561,
	"fee": 1420,
	"status": {
		"confirmed": true,
		"block_height": 850000,
		"block_hash": "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054",
		"block_time": 1718588500
	},
	"vin": [{
		"txid": "1111111111111111111111111111111111111111111111111111111111111111",
		"vout": 0,
		"scriptsig": "",
		"witness": ["3044022100aa01", "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"],
		"sequence": 4294967295,
		"prevout": {
			"scriptpubkey": "0014abcdefabcdefabcdefabcdefabcdefabcdefabcd",
			"scriptpubkey_type": "v0_p2wpkh",
			"value": 150000
		}
	}],
	"vout": [{
		"scriptpubkey": "0020aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"scriptpubkey_type": "v0_p2wsh",
		"value": 148580
	}]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("850123"))
	})
	mux.HandleFunc("/tx/f301e5782ae0e77e291dd2a4b522a2b3a59238e8fb47ccb20913e7c9a2744b15", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleTxJSON))
	})
	mux.HandleFunc("/block-height/850000", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054\n"))
	})
	mux.HandleFunc("/block/00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054/txids", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["aaaa","bbbb","cccc"]`))
	})
	mux.HandleFunc("/tx/ratelimited", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewMempoolBackend(t *testing.T) {
	b := NewMempoolBackend("https://mempool.space/api/", 0)

	if b.IsConnected() {
		t.Error("should not be connected initially")
	}

	// Trailing slash removal
	if b.baseURL != "https://mempool.space/api" {
		t.Errorf("baseURL = %s, trailing slash should be removed", b.baseURL)
	}
}

func TestConnect(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, 5*time.Second)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !b.IsConnected() {
		t.Error("should be connected after Connect")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.IsConnected() {
		t.Error("should not be connected after Close")
	}
}

func TestGetTransaction(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, 5*time.Second)

	tx, err := b.GetTransaction(context.Background(), "f301e5782ae0e77e291dd2a4b522a2b3a59238e8fb47ccb20913e7c9a2744b15")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}

	if tx.TxID != "f301e5782ae0e77e291dd2a4b522a2b3a59238e8fb47ccb20913e7c9a2744b15" {
		t.Errorf("txid = %s", tx.TxID)
	}
	if !tx.Confirmed {
		t.Error("expected confirmed")
	}
	if tx.BlockHeight != 850000 {
		t.Errorf("block height = %d", tx.BlockHeight)
	}
	if len(tx.Inputs) != 1 || len(tx.Outputs) != 1 {
		t.Fatalf("inputs/outputs = %d/%d", len(tx.Inputs), len(tx.Outputs))
	}
	if len(tx.Inputs[0].Witness) != 2 {
		t.Errorf("witness items = %d", len(tx.Inputs[0].Witness))
	}
	if tx.Outputs[0].Value != 148580 {
		t.Errorf("output value = %d", tx.Outputs[0].Value)
	}
	if tx.Inputs[0].PrevOut == nil || tx.Inputs[0].PrevOut.Value != 150000 {
		t.Error("prevout not decoded")
	}
	// vsize derived from weight
	if tx.VSize != (561+3)/4 {
		t.Errorf("vsize = %d", tx.VSize)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, 5*time.Second)

	_, err := b.GetTransaction(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000")
	if !errors.Is(err, ErrTxNotFound) {
		t.Errorf("expected ErrTxNotFound, got %v", err)
	}
}

func TestGetTransactionRateLimited(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, 5*time.Second)

	_, err := b.GetTransaction(context.Background(), "ratelimited")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestGetBlockHeight(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, 5*time.Second)

	height, err := b.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 850123 {
		t.Errorf("height = %d, want 850123", height)
	}
}

func TestGetBlockHashAtHeight(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, 5*time.Second)

	hash, err := b.GetBlockHashAtHeight(context.Background(), 850000)
	if err != nil {
		t.Fatalf("GetBlockHashAtHeight: %v", err)
	}
	if hash != "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054" {
		t.Errorf("hash = %s", hash)
	}
}

func TestGetBlockTxIDs(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, 5*time.Second)

	txids, err := b.GetBlockTxIDs(context.Background(), "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054")
	if err != nil {
		t.Fatalf("GetBlockTxIDs: %v", err)
	}
	if len(txids) != 3 {
		t.Fatalf("txids = %v", txids)
	}
	if txids[0] != "aaaa" {
		t.Errorf("first txid = %s", txids[0])
	}
}
