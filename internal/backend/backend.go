// Package backend provides read-only blockchain API clients for fetching
// transaction and block data. No private keys are handled here.
package backend

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNotConnected  = errors.New("backend not connected")
	ErrTxNotFound    = errors.New("transaction not found")
	ErrBlockNotFound = errors.New("block not found")
	ErrRateLimited   = errors.New("rate limited")
)

// Transaction represents a transaction.
type Transaction struct {
	TxID        string     `json:"txid"`
	Version     int32      `json:"version"`
	Size        int64      `json:"size"`
	VSize       int64      `json:"vsize"`
	Weight      int64      `json:"weight"`
	LockTime    uint32     `json:"locktime"`
	Fee         uint64     `json:"fee"`
	Confirmed   bool       `json:"confirmed"`
	BlockHash   string     `json:"block_hash,omitempty"`
	BlockHeight int64      `json:"block_height,omitempty"`
	BlockTime   int64      `json:"block_time,omitempty"`
	Inputs      []TxInput  `json:"vin"`
	Outputs     []TxOutput `json:"vout"`
}

// TxInput represents a transaction input.
type TxInput struct {
	TxID         string    `json:"txid"`
	Vout         uint32    `json:"vout"`
	ScriptSig    string    `json:"scriptsig,omitempty"`
	ScriptSigAsm string    `json:"scriptsig_asm,omitempty"`
	Witness      []string  `json:"witness,omitempty"`
	Sequence     uint32    `json:"sequence"`
	PrevOut      *TxOutput `json:"prevout,omitempty"`
}

// TxOutput represents a transaction output.
type TxOutput struct {
	ScriptPubKey     string `json:"scriptpubkey"`
	ScriptPubKeyAsm  string `json:"scriptpubkey_asm,omitempty"`
	ScriptPubKeyType string `json:"scriptpubkey_type,omitempty"`
	ScriptPubKeyAddr string `json:"scriptpubkey_address,omitempty"`
	Value            uint64 `json:"value"`
}

// Backend defines the interface for blockchain data providers.
// All methods are read-only.
type Backend interface {
	// Connect establishes connection to the backend.
	Connect(ctx context.Context) error

	// Close closes the connection.
	Close() error

	// IsConnected returns true if connected.
	IsConnected() bool

	// GetTransaction returns a transaction by ID.
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// GetBlockHeight returns the current chain tip height.
	GetBlockHeight(ctx context.Context) (int64, error)

	// GetBlockHashAtHeight returns the block hash at the given height.
	GetBlockHashAtHeight(ctx context.Context, height int64) (string, error)

	// GetBlockTxIDs returns all transaction IDs in the given block.
	GetBlockTxIDs(ctx context.Context, blockHash string) ([]string, error)
}
