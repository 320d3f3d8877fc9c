package swap

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/JPShag/ComitSwapBot/pkg/helpers"
)

// Lifecycle errors
var (
	ErrAlreadySettled    = fmt.Errorf("swap already settled")
	ErrInvalidTransition = fmt.Errorf("invalid state transition")
)

// SpendKind is the classification of a transaction spending an HTLC output.
type SpendKind int

const (
	SpendRefund SpendKind = iota
	SpendRedeem
)

// ClassifySpend inspects the witness of an input spending a tracked HTLC
// output. A redeem reveals the 32-byte secret as the second witness
// element; anything else is treated as a refund.
func ClassifySpend(witness []string) (SpendKind, string) {
	if len(witness) < 2 {
		return SpendRefund, ""
	}
	if !helpers.IsHexString(witness[1], 32) {
		return SpendRefund, ""
	}
	return SpendRedeem, witness[1]
}

// VerifySecret checks that SHA-256(secret) equals the expected hash.
// Both arguments are hex strings. Used to flag redeems whose revealed
// secret does not match the lock's secret hash.
func VerifySecret(secretHex, secretHashHex string) bool {
	secret, err := helpers.HexToBytes(secretHex)
	if err != nil || len(secret) != 32 {
		return false
	}
	expected, err := helpers.HexToBytes(secretHashHex)
	if err != nil || len(expected) != 32 {
		return false
	}
	actual := sha256.Sum256(secret)
	return helpers.ConstantTimeCompare(actual[:], expected)
}

// ApplySpend records a redeem or refund on the swap. Redeem and refund are
// mutually exclusive and set exactly once; a second spend attempt returns
// ErrAlreadySettled. Expired swaps may still settle (late spends observed
// after the expiry sweep).
func (s *AtomicSwap) ApplySpend(kind SpendKind, spend *HTLCRecord) error {
	if s.IsSettled() {
		return ErrAlreadySettled
	}
	if s.CurrentState != StateLocked && s.CurrentState != StateExpired {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, s.CurrentState)
	}

	switch kind {
	case SpendRedeem:
		spend.Classification = ClassRedeem
		s.RedeemTransaction = spend
		s.CurrentState = StateRedeemed
	case SpendRefund:
		spend.Classification = ClassRefund
		s.RefundTransaction = spend
		s.CurrentState = StateRefunded
	default:
		return fmt.Errorf("%w: unknown spend kind %d", ErrInvalidTransition, kind)
	}

	s.LastUpdated = time.Now().UTC()
	return nil
}

// MarkExpired transitions a locked swap to expired. Expiry is not
// terminal; the swap stays in the pending index awaiting a late spend.
func (s *AtomicSwap) MarkExpired() error {
	if s.CurrentState != StateLocked {
		return fmt.Errorf("%w: %s -> expired", ErrInvalidTransition, s.CurrentState)
	}
	s.CurrentState = StateExpired
	s.LastUpdated = time.Now().UTC()
	return nil
}

// TimelockPassed reports whether the swap's timelock has elapsed, given
// the current chain tip height and wall clock.
func (s *AtomicSwap) TimelockPassed(tipHeight int64, now time.Time) bool {
	if s.LockTransaction == nil || s.LockTransaction.Params == nil {
		return false
	}
	timelock := s.LockTransaction.Params.Timelock
	if s.LockTransaction.Params.IsHeightTimelock() {
		return tipHeight >= int64(timelock)
	}
	return now.Unix() >= int64(timelock)
}
