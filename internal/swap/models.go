// Package swap implements detection and lifecycle tracking of BTC/XMR
// atomic swaps on the Bitcoin chain. It recognizes the COMIT HTLC script
// template in transaction outputs and follows each swap from lock to
// redeem or refund.
package swap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SwapState is the lifecycle state of a tracked swap.
type SwapState string

const (
	StateLocked   SwapState = "locked"
	StateRedeemed SwapState = "redeemed"
	StateRefunded SwapState = "refunded"
	StateExpired  SwapState = "expired"
)

// Classification describes the role a transaction plays in a swap.
type Classification string

const (
	ClassLock   Classification = "lock"
	ClassRedeem Classification = "redeem"
	ClassRefund Classification = "refund"
)

// LocktimeThreshold separates block-height timelocks from UNIX-timestamp
// timelocks, per the Bitcoin nLockTime convention.
const LocktimeThreshold = 500000000

// MaxTimelock is the largest timelock value accepted by the matcher.
const MaxTimelock = 2147483647

// satoshisPerBTC is the divisor for converting satoshis to BTC.
var satoshisPerBTC = decimal.NewFromInt(100000000)

// HTLCParams holds the parameters extracted from a matched HTLC script.
// Hash fields are lowercase hex of the raw bytes (32/20/20).
type HTLCParams struct {
	SecretHash          string `json:"secret_hash"`
	RecipientPubKeyHash string `json:"recipient_pubkey_hash"`
	SenderPubKeyHash    string `json:"sender_pubkey_hash"`
	Timelock            uint32 `json:"timelock"`
}

// IsHeightTimelock returns true if the timelock is a block height rather
// than a UNIX timestamp.
func (p *HTLCParams) IsHeightTimelock() bool {
	return p.Timelock < LocktimeThreshold
}

// HTLCRecord describes one HTLC-relevant transaction observed on chain.
type HTLCRecord struct {
	TxID           string         `json:"txid"`
	OutputIndex    uint32         `json:"output_index"`
	ValueSats      uint64         `json:"value_sats"`
	Classification Classification `json:"classification"`

	// Params is set for lock transactions only.
	Params *HTLCParams `json:"params,omitempty"`

	// RevealedSecret is set for redeem transactions only, hex of 32 bytes.
	RevealedSecret string `json:"revealed_secret,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// AtomicSwap is the full tracked record of one swap.
type AtomicSwap struct {
	// SwapID is "{lock_txid}:{output_index}".
	SwapID string `json:"swap_id"`

	LockTransaction   *HTLCRecord `json:"lock_transaction"`
	RedeemTransaction *HTLCRecord `json:"redeem_transaction,omitempty"`
	RefundTransaction *HTLCRecord `json:"refund_transaction,omitempty"`

	CurrentState SwapState `json:"current_state"`

	// BTCAmount is the locked value in BTC, exact (sats / 1e8).
	BTCAmount decimal.Decimal `json:"btc_amount"`

	// XMRAmount and ExchangeRate are filled by the enrichment pass.
	XMRAmount    *decimal.Decimal `json:"xmr_amount,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`

	DetectedAt  time.Time `json:"detected_at"`
	LastUpdated time.Time `json:"last_updated"`

	// NotificationSent holds the correlation id of the first successful
	// notification, empty until one is dispatched.
	NotificationSent string `json:"notification_sent,omitempty"`
}

// SwapIDFor builds the canonical swap identifier for a lock outpoint.
func SwapIDFor(lockTxID string, outputIndex uint32) string {
	return fmt.Sprintf("%s:%d", lockTxID, outputIndex)
}

// NewAtomicSwap creates a swap in the locked state from a lock record.
func NewAtomicSwap(lock *HTLCRecord) *AtomicSwap {
	now := time.Now().UTC()
	return &AtomicSwap{
		SwapID:          SwapIDFor(lock.TxID, lock.OutputIndex),
		LockTransaction: lock,
		CurrentState:    StateLocked,
		BTCAmount:       SatsToBTC(lock.ValueSats),
		DetectedAt:      now,
		LastUpdated:     now,
	}
}

// SatsToBTC converts satoshis to an exact BTC decimal.
func SatsToBTC(sats uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(sats)).Div(satoshisPerBTC)
}

// IsSettled returns true once a redeem or refund has been recorded.
func (s *AtomicSwap) IsSettled() bool {
	return s.RedeemTransaction != nil || s.RefundTransaction != nil
}
